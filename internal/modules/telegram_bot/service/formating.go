package service

import (
	"fmt"
	"strings"
	"time"

	"signal_engine/internal/models"
	cache "signal_engine/internal/modules/candle_cache/service"
	health "signal_engine/internal/modules/health/service"
)

const staleFactor = 3

const helpText = "Движок сигналов.\n\n" +
	"/status - фид и буферы свечей\n" +
	"/stats - winrate закрытых сигналов\n" +
	"/signals - открытые сигналы"

func formatStatus(s health.Snapshot, symbols []string, cs cache.Stats, stale []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ℹ️ Статус\n\n")
	fmt.Fprintf(&b, "Готов: %s\n", onOff(s.Ready))
	fmt.Fprintf(&b, "WebSocket: %s\n", onOff(s.WSConnected))
	fmt.Fprintf(&b, "Uptime: %s\n", (time.Duration(s.UptimeSec) * time.Second).String())
	fmt.Fprintf(&b, "Инструменты: %s\n", strings.Join(symbols, ", "))
	fmt.Fprintf(&b, "Буферов: %d, свечей принято: %d, отброшено: %d\n", cs.Keys, cs.Ingested, cs.Dropped)
	if len(stale) == 0 {
		b.WriteString("Все буферы свежие ✅")
	} else {
		fmt.Fprintf(&b, "⚠️ Отстают: %s", strings.Join(stale, ", "))
	}
	return b.String()
}

func formatStats(st models.Stats) string {
	if st.Total == 0 {
		return "📭 Закрытых сигналов пока нет"
	}
	return fmt.Sprintf("📊 Статистика\n\nСделок: %d\nTP: %d\nSL: %d\nWinrate: %s%%",
		st.Total, st.Wins, st.Losses, f2(st.WinRate))
}

func formatOpen(open []models.Signal, now time.Time) string {
	if len(open) == 0 {
		return "📭 Открытых сигналов нет"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📈 Открытые сигналы (%d):\n", len(open))
	for _, s := range open {
		fmt.Fprintf(&b, "- %s %s %s entry=%s sl=%s tp=%s (%s)\n",
			s.Symbol, s.Direction, s.Timeframe, f4(s.Entry), f4(s.StopLoss), f4(s.TakeProfit),
			now.Sub(s.CreatedAt).Truncate(time.Minute))
	}
	return strings.TrimRight(b.String(), "\n")
}

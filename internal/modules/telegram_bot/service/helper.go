package service

import (
	"fmt"
	"strconv"
)

func onOff(v bool) string {
	if v {
		return "да"
	}
	return "нет"
}

func f2(v float64) string { // для красивого вывода
	return fmt.Sprintf("%.2f", v)
}

func f4(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

package utils

import (
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// HashToken hashes a device token using bcrypt
func HashToken(token string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckToken verifies a token against its hash
func CheckToken(token, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token))
	return err == nil
}

var sizeUnits = []string{"B", "KB", "MB"}

// HumanFileSize formats a byte count with base 1024 and at most two decimals,
// e.g. 1536 -> "1.5 KB". Sizes above the MB range stay in MB.
func HumanFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}

	value := float64(bytes)
	i := 0
	for value >= 1024 && i < len(sizeUnits)-1 {
		value /= 1024
		i++
	}
	value = math.Round(value*100) / 100

	return strconv.FormatFloat(value, 'f', -1, 64) + " " + sizeUnits[i]
}

// SignalBars maps an RSSI in dBm to a four step bar glyph
func SignalBars(rssi int) string {
	switch {
	case rssi > -50:
		return "▮▮▮▮"
	case rssi > -60:
		return "▮▮▮▯"
	case rssi > -70:
		return "▮▮▯▯"
	default:
		return "▮▯▯▯"
	}
}

// FormatSyncTime renders a unix timestamp in local time, "never" for zero
func FormatSyncTime(ts int64) string {
	if ts <= 0 {
		return "never"
	}
	return time.Unix(ts, 0).Local().Format("2006-01-02 15:04:05")
}

// BaseFileName strips any client supplied directory, accepting both slash styles
func BaseFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// HasExtension reports whether name ends with ext, ignoring case
func HasExtension(name, ext string) bool {
	return strings.HasSuffix(strings.ToLower(name), strings.ToLower(ext))
}

// Package types holds the JSON shapes of the device REST API
package types

import (
	"encoding/json"
	"strconv"
	"strings"
)

// StatusResponse is the generic {"status", "message"} reply most endpoints use
type StatusResponse struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// WifiNetwork is one entry of GET /api/v1/wifi/scan as sent by the device
type WifiNetwork struct {
	SSID string `json:"ssid"`
	RSSI RSSI   `json:"rssi"`
	Enc  int    `json:"enc"`
}

// RSSI accepts the signal strength as a JSON number or a numeric string.
// Anything unparseable decodes as 0.
type RSSI int

// UnmarshalJSON implements json.Unmarshaler
func (r *RSSI) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		if f, err := n.Float64(); err == nil {
			*r = RSSI(int(f))
			return nil
		}
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			*r = RSSI(v)
			return nil
		}
	}

	*r = 0
	return nil
}

// Network is a scan result enriched for display
type Network struct {
	SSID        string `json:"ssid"`
	RSSI        int    `json:"rssi"`
	RSSIDisplay string `json:"rssiDisplay"`
	Bars        string `json:"bars"`
	Secured     bool   `json:"secured"`
}

// WifiConnectRequest is the body of POST /api/v1/wifi/connect
type WifiConnectRequest struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

// WifiConnectResponse is the reply of POST /api/v1/wifi/connect
type WifiConnectResponse struct {
	Status  string `json:"status"`
	SSID    string `json:"ssid,omitempty"`
	IP      string `json:"ip,omitempty"`
	Message string `json:"message,omitempty"`
}

// WifiStatus is the reply of GET /api/v1/wifi/status
type WifiStatus struct {
	Connected bool   `json:"connected"`
	SSID      string `json:"ssid"`
	IP        string `json:"ip"`
}

// NTPStatus is the reply of GET /api/v1/ntp/status and POST /api/v1/ntp/sync
type NTPStatus struct {
	Status       string `json:"status,omitempty"`
	Message      string `json:"message,omitempty"`
	LastOK       bool   `json:"lastOk"`
	LastStatus   string `json:"lastStatus"`
	LastSyncTime int64  `json:"lastSyncTime"`
}

// NTPConfig is the body and reply of /api/v1/ntp/config
type NTPConfig struct {
	Status    string `json:"status,omitempty"`
	Message   string `json:"message,omitempty"`
	NTPServer string `json:"ntp_server"`
}

// GIFFile is one entry of the GIF listing
type GIFFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// GIFList is the reply of GET /api/v1/gif
type GIFList struct {
	Files      []GIFFile `json:"files"`
	UsedBytes  int64     `json:"usedBytes"`
	TotalBytes int64     `json:"totalBytes"`
	FreeBytes  int64     `json:"freeBytes"`
}

// GIFRequest names a GIF for play and delete
type GIFRequest struct {
	Name string `json:"name"`
}

// GIFResponse is the reply of GIF mutations
type GIFResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Filename string `json:"filename,omitempty"`
	File     string `json:"file,omitempty"`
}

// TokenSaveRequest is the body of POST /api/v1/token/save
type TokenSaveRequest struct {
	Token string `json:"token"`
}

// OTAStatus is the reply of GET /api/v1/ota/status
type OTAStatus struct {
	InProgress   bool   `json:"inProgress"`
	BytesWritten int64  `json:"bytesWritten"`
	TotalBytes   int64  `json:"totalBytes"`
	Error        bool   `json:"error"`
	Message      string `json:"message"`
}

// OTAResult is the reply of POST /api/v1/ota/fw and /api/v1/ota/fs
type OTAResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

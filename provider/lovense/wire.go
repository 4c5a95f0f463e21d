package lovense

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/c360/hapticlink/errors"
	"github.com/c360/hapticlink/haptic"
)

// remoteRequest is the POST body of the remote dialect. Field order is the
// wire order.
type remoteRequest struct {
	Command string `json:"command"`
	Action  string `json:"action,omitempty"`
	TimeSec int    `json:"timeSec,omitempty"`
	APIVer  int    `json:"apiVer,omitempty"`
}

func remoteGetToys() remoteRequest {
	return remoteRequest{Command: "GetToys"}
}

func remoteVibrate(level int, duration time.Duration) remoteRequest {
	return remoteRequest{
		Command: "Function",
		Action:  "Vibrate:" + strconv.Itoa(level),
		TimeSec: timeSec(duration),
		APIVer:  1,
	}
}

func remoteStop() remoteRequest {
	return remoteRequest{Command: "Function", Action: "Stop"}
}

// timeSec rounds duration up to whole seconds, minimum 1.
func timeSec(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Local query strings are assembled by hand: url.Values.Encode sorts keys
// and the control servers expect this order.

func localGetToys() string {
	return "command=GetToys"
}

func localVibrate(level int, toy string) string {
	q := "command=Vibrate&action=Vibrate&intensity=" + strconv.Itoa(level)
	if toy != "" {
		q += "&toy=" + url.QueryEscape(toy)
	}
	return q
}

func localStop() string {
	return "command=Vibrate&action=Vibrate&intensity=0"
}

type toysResponse struct {
	Code    *int   `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Data    *struct {
		Toys json.RawMessage `json:"toys"`
	} `json:"data"`
}

type toyEntry struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	NickName string   `json:"nickName"`
	Battery  *float64 `json:"battery"`
}

// parseToys decodes a GetToys reply into devices sorted by id.
func parseToys(body []byte) ([]haptic.Device, error) {
	var resp toysResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"lovense", "parseToys", "decode reply")
	}
	if resp.Code != nil && *resp.Code != 200 {
		msg := resp.Message
		if msg == "" {
			msg = resp.Type
		}
		return nil, errors.WrapInvalid(fmt.Errorf("%w: code %d %s", errors.ErrServerError, *resp.Code, msg),
			"lovense", "parseToys", "check reply code")
	}
	if resp.Data == nil || len(resp.Data.Toys) == 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: missing data.toys", errors.ErrParsingFailed),
			"lovense", "parseToys", "decode reply")
	}

	raw := bytes.TrimSpace(resp.Data.Toys)
	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
				"lovense", "parseToys", "decode toys string")
		}
		raw = bytes.TrimSpace([]byte(encoded))
	}

	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, errors.WrapInvalid(errors.ErrNoToys, "lovense", "parseToys", "discover toys")
	}
	if raw[0] != '{' {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: data.toys is not an object", errors.ErrParsingFailed),
			"lovense", "parseToys", "decode toys")
	}

	var entries map[string]toyEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"lovense", "parseToys", "decode toys")
	}
	if len(entries) == 0 {
		return nil, errors.WrapInvalid(errors.ErrNoToys, "lovense", "parseToys", "discover toys")
	}

	devices := make([]haptic.Device, 0, len(entries))
	for key, entry := range entries {
		id := key
		if id == "" {
			id = entry.ID
		}
		devices = append(devices, haptic.Device{ID: id, Label: toyLabel(id, entry), CanVibrate: true})
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices, nil
}

// toyLabel renders "<nickName|name|id> (<name or id>, <battery>%)". The
// detail never repeats the display name.
func toyLabel(id string, entry toyEntry) string {
	display := firstNonEmpty(entry.NickName, entry.Name, id)

	detail := id
	if entry.Name != "" && entry.Name != display {
		detail = entry.Name
	}

	battery := 0
	if entry.Battery != nil {
		battery = int(math.Round(*entry.Battery))
	}

	if detail == display {
		return fmt.Sprintf("%s (%d%%)", display, battery)
	}
	return fmt.Sprintf("%s (%s, %d%%)", display, detail, battery)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// commandReply is the loose shape of Function/Vibrate replies
type commandReply struct {
	Code    *int   `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// checkCommandReply accepts empty and non-JSON bodies and rejects an
// explicit non-200 code.
func checkCommandReply(body []byte) error {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return nil
	}
	var reply commandReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
	}
	if reply.Code != nil && *reply.Code != 200 {
		return fmt.Errorf("%w: code %d %s", errors.ErrServerError, *reply.Code, firstNonEmpty(reply.Message, reply.Type))
	}
	return nil
}

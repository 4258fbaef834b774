package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidAircon is wrapped by every aircon setting rejected by ParseAircon
// or AirconSetting.Payload.
var ErrInvalidAircon = errors.New("invalid aircon setting")

const (
	AirconMinTemp = 17
	AirconMaxTemp = 30
)

var (
	airconUnits = map[string]byte{
		"living":   0xAC,
		"bedroom2": 0xAD,
		"bedroom3": 0xAE,
	}
	airconModes = map[string]byte{
		"auto": 0x00,
		"cool": 0x01,
		"dry":  0x02,
		"heat": 0x03,
	}
	airconFans = map[string]byte{
		"auto":  0x00,
		"quiet": 0x02,
		"1":     0x04,
		"2":     0x08,
		"3":     0x0C,
	}
	airconSpecials = map[string]byte{
		"default":  0x00,
		"powerful": 0x01,
		"sleep":    0x03,
	}
)

// AirconSetting is a full aircon state. The remote resends everything on
// each change, so there is no partial update.
type AirconSetting struct {
	Unit    string // living, bedroom2 or bedroom3
	Power   bool
	Temp    int // degrees C
	Mode    string
	Fan     string
	Special string // empty means default
}

// Payload encodes the setting as
// [unit opcode, power, temp-17, mode, fan, special].
func (s AirconSetting) Payload() ([]byte, error) {
	unit, ok := airconUnits[s.Unit]
	if !ok {
		return nil, fmt.Errorf("%w: unknown unit %q", ErrInvalidAircon, s.Unit)
	}
	if s.Temp < AirconMinTemp || s.Temp > AirconMaxTemp {
		return nil, fmt.Errorf("%w: temperature %d outside %d-%d", ErrInvalidAircon, s.Temp, AirconMinTemp, AirconMaxTemp)
	}
	mode, ok := airconModes[s.Mode]
	if !ok {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidAircon, s.Mode)
	}
	fan, ok := airconFans[s.Fan]
	if !ok {
		return nil, fmt.Errorf("%w: unknown fan speed %q", ErrInvalidAircon, s.Fan)
	}
	special := s.Special
	if special == "" {
		special = "default"
	}
	spec, ok := airconSpecials[special]
	if !ok {
		return nil, fmt.Errorf("%w: unknown special mode %q", ErrInvalidAircon, s.Special)
	}

	var power byte
	if s.Power {
		power = 0x01
	}
	return []byte{unit, power, byte(s.Temp - AirconMinTemp), mode, fan, spec}, nil
}

// ParseAircon reads "<unit> <on|off> <temp> <mode> <fan> [special]",
// e.g. "living on 24 cool auto".
func ParseAircon(s string) (AirconSetting, error) {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) < 5 || len(fields) > 6 {
		return AirconSetting{}, fmt.Errorf("%w: want <unit> <on|off> <temp> <mode> <fan> [special], got %q", ErrInvalidAircon, s)
	}

	var setting AirconSetting
	setting.Unit = fields[0]
	switch fields[1] {
	case "on":
		setting.Power = true
	case "off":
	default:
		return AirconSetting{}, fmt.Errorf("%w: power must be on or off, got %q", ErrInvalidAircon, fields[1])
	}
	temp, err := strconv.Atoi(fields[2])
	if err != nil {
		return AirconSetting{}, fmt.Errorf("%w: temperature %q", ErrInvalidAircon, fields[2])
	}
	setting.Temp = temp
	setting.Mode = fields[3]
	setting.Fan = fields[4]
	if len(fields) == 6 {
		setting.Special = fields[5]
	}

	if _, err := setting.Payload(); err != nil {
		return AirconSetting{}, err
	}
	return setting, nil
}

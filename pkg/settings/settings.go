package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/cbodonnell/roomsync/pkg/log"
)

const (
	// DefaultPath is the settings file, relative to the working directory
	DefaultPath = "data.json"
	// MinWindowSize is the smallest window edge the game accepts
	MinWindowSize = 1000

	sectionKey = "settings"
)

// Keys of the settings object.
const (
	KeyWindowLength     = "RSWINDOW_LENGTH"
	KeyWindowHeight     = "RSWINDOW_HEIGHT"
	KeyFPS              = "FPS"
	KeyIP               = "IP"
	KeyPort             = "PORT"
	KeyName             = "NAME"
	KeyPreferredLatency = "PREFERRED_LATENCY"
	KeySkin             = "SKIN"
)

// Settings are the persisted user settings. Every value is stored as a string.
type Settings struct {
	WindowLength     string `json:"RSWINDOW_LENGTH"`
	WindowHeight     string `json:"RSWINDOW_HEIGHT"`
	FPS              string `json:"FPS"`
	IP               string `json:"IP"`
	Port             string `json:"PORT"`
	Name             string `json:"NAME"`
	PreferredLatency string `json:"PREFERRED_LATENCY"`
	Skin             string `json:"SKIN"`
}

// Default returns the settings used when no file exists.
func Default() Settings {
	return Settings{
		WindowLength:     "1000",
		WindowHeight:     "1000",
		FPS:              "60",
		IP:               "127.0.0.1",
		Port:             "5766",
		Name:             "",
		PreferredLatency: "4",
		Skin:             "0",
	}
}

// ConfigError is returned when a setting cannot be used.
type ConfigError struct {
	Key   string
	Value string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid setting %s=%q: %v", e.Key, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load reads the settings file at path. A missing or malformed file yields
// the defaults. Missing or non-string fields fall back to their default one
// by one.
func Load(path string) (Settings, error) {
	s := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug("No settings file at %s, using defaults", path)
			return s, nil
		}
		return s, fmt.Errorf("failed to read settings file: %v", err)
	}

	root := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &root); err != nil {
		log.Warn("Ignoring malformed settings file %s: %v", path, err)
		return s, nil
	}
	raw, ok := root[sectionKey]
	if !ok {
		return s, nil
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		log.Warn("Ignoring malformed settings object in %s: %v", path, err)
		return s, nil
	}

	for key, dst := range s.fields() {
		v, ok := fields[key]
		if !ok {
			continue
		}
		var str string
		if err := json.Unmarshal(v, &str); err != nil {
			log.Warn("Ignoring setting %s: %v", key, err)
			continue
		}
		*dst = str
	}

	s.WindowLength, s.WindowHeight = clampWindow(s.WindowLength, s.WindowHeight)

	return s, nil
}

// Save writes s to path, keeping any other top-level keys already in the file.
func Save(path string, s Settings) error {
	root := map[string]json.RawMessage{}
	if b, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(b, &root); err != nil {
			log.Warn("Overwriting malformed settings file %s: %v", path, err)
			root = map[string]json.RawMessage{}
		}
	}

	section, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %v", err)
	}
	root[sectionKey] = section

	b, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings file: %v", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("failed to write settings file: %v", err)
	}

	return nil
}

// Set assigns a setting by its file key.
func (s *Settings) Set(key, value string) error {
	dst, ok := s.fields()[key]
	if !ok {
		return fmt.Errorf("unknown setting %s", key)
	}
	*dst = value
	return nil
}

// PortNumber parses PORT. A value that is not a TCP port is a *ConfigError.
func (s Settings) PortNumber() (uint16, error) {
	p, err := strconv.ParseUint(s.Port, 10, 16)
	if err != nil {
		return 0, &ConfigError{Key: KeyPort, Value: s.Port, Err: err}
	}
	return uint16(p), nil
}

// Address returns IP:PORT.
func (s Settings) Address() (string, error) {
	port, err := s.PortNumber()
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(s.IP, strconv.Itoa(int(port))), nil
}

// Window returns the window size. If either edge is below MinWindowSize,
// both edges are reset to MinWindowSize.
func (s Settings) Window() (int, int) {
	length, lengthErr := strconv.Atoi(s.WindowLength)
	height, heightErr := strconv.Atoi(s.WindowHeight)
	if lengthErr != nil || heightErr != nil || length < MinWindowSize || height < MinWindowSize {
		return MinWindowSize, MinWindowSize
	}
	return length, height
}

// SkinIndex returns SKIN as a number, or 0 if it is not one.
func (s Settings) SkinIndex() int {
	skin, err := strconv.Atoi(s.Skin)
	if err != nil || skin < 0 {
		return 0
	}
	return skin
}

func (s *Settings) fields() map[string]*string {
	return map[string]*string{
		KeyWindowLength:     &s.WindowLength,
		KeyWindowHeight:     &s.WindowHeight,
		KeyFPS:              &s.FPS,
		KeyIP:               &s.IP,
		KeyPort:             &s.Port,
		KeyName:             &s.Name,
		KeyPreferredLatency: &s.PreferredLatency,
		KeySkin:             &s.Skin,
	}
}

func clampWindow(length, height string) (string, string) {
	l, h := Settings{WindowLength: length, WindowHeight: height}.Window()
	return strconv.Itoa(l), strconv.Itoa(h)
}

// PathFromArgs finds the -settings flag in args ahead of flag parsing, so the
// file can supply the defaults of other flags. It returns DefaultPath if the
// flag is absent.
func PathFromArgs(args []string) string {
	for i, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != "settings" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return DefaultPath
}

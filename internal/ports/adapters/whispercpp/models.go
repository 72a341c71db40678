package whispercpp

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Presets are ordered from smallest and fastest to largest and most accurate.
var Presets = []string{"tiny", "base", "small", "medium", "large-v2", "large-v3"}

const DefaultPreset = "small"

const (
	DeviceAuto        = "auto"
	DeviceCPU         = "cpu"
	DeviceAccelerator = "accelerator"
)

func ValidPreset(name string) bool {
	for _, p := range Presets {
		if p == name {
			return true
		}
	}
	return false
}

// normalizeDevice accepts a few common spellings for the accelerator.
func normalizeDevice(d string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case "", DeviceAuto:
		return DeviceAuto, nil
	case DeviceCPU:
		return DeviceCPU, nil
	case DeviceAccelerator, "gpu", "cuda", "metal":
		return DeviceAccelerator, nil
	}
	return "", fmt.Errorf("unsupported device %q", d)
}

// acceleratorPresent is replaced in tests.
var acceleratorPresent = func() bool {
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		return true
	}
	_, err := os.Stat("/dev/nvidia0")
	return err == nil
}

func resolveDevice(want string) (string, error) {
	d, err := normalizeDevice(want)
	if err != nil {
		return "", err
	}
	switch d {
	case DeviceAuto:
		if acceleratorPresent() {
			return DeviceAccelerator, nil
		}
		return DeviceCPU, nil
	case DeviceAccelerator:
		if !acceleratorPresent() {
			return "", errors.New("accelerator requested but none is available")
		}
	}
	return d, nil
}

// modelFile picks the weights for preset on device. The accelerator runs
// the float16 file; the CPU prefers the 8-bit quantized file and falls back
// to float16 when it is missing.
func modelFile(dir, preset, device string) (path, precision string, err error) {
	f16 := filepath.Join(dir, "ggml-"+preset+".bin")
	if device == DeviceCPU {
		q8 := filepath.Join(dir, "ggml-"+preset+"-q8_0.bin")
		if _, err := os.Stat(q8); err == nil {
			return q8, "int8", nil
		}
	}
	if _, err := os.Stat(f16); err != nil {
		return "", "", fmt.Errorf("model weights for %q not found in %s: %w", preset, dir, err)
	}
	return f16, "float16", nil
}

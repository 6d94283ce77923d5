package blackwhitelist

import (
	"errors"
	"fmt"
	"os"

	"github.com/Hara602/usbGate/internal/model"
	"gopkg.in/yaml.v3"
)

var ErrInvalidEntry = errors.New("invalid blocklist entry")

type fileEntry struct {
	VendorID     int    `yaml:"vendorId"`
	ProductID    int    `yaml:"productId"`
	SerialNumber string `yaml:"serialNumber"`
}

type blockFile struct {
	Blocked []fileEntry `yaml:"blocked"`
}

// LoadFile 读取 YAML 黑名单:
//
//	blocked:
//	  - vendorId: 0x0781
//	    productId: 0x55ab
//	    serialNumber: "00002324122424065600"
func LoadFile(path string) ([]model.DeviceSignature, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read blocklist file: %w", err)
	}
	return ParseFile(b)
}

func ParseFile(b []byte) ([]model.DeviceSignature, error) {
	var f blockFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse blocklist file: %w", err)
	}
	out := make([]model.DeviceSignature, 0, len(f.Blocked))
	for i, e := range f.Blocked {
		if e.VendorID <= 0 || e.ProductID <= 0 || e.SerialNumber == "" {
			return nil, fmt.Errorf("%w: #%d needs vendorId, productId and serialNumber", ErrInvalidEntry, i)
		}
		out = append(out, model.DeviceSignature{
			VendorID:     e.VendorID,
			ProductID:    e.ProductID,
			SerialNumber: e.SerialNumber,
		})
	}
	return out, nil
}

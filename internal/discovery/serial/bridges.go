// internal/discovery/serial/bridges.go
package serial

import (
	"strconv"
	"strings"
)

// BridgeDatabase identifies common USB-to-serial bridge chips by VID/PID
type BridgeDatabase struct {
	vendors map[uint16]*VendorInfo
}

// VendorInfo contains vendor-specific information
type VendorInfo struct {
	Name     string
	products map[uint16]string
}

// NewBridgeDatabase creates and initializes the bridge database
func NewBridgeDatabase() *BridgeDatabase {
	db := &BridgeDatabase{
		vendors: make(map[uint16]*VendorInfo),
	}
	db.initializeDatabase()
	return db
}

func (db *BridgeDatabase) initializeDatabase() {
	db.AddVendor(0x0403, "FTDI")
	db.AddProduct(0x0403, 0x6001, "FT232R")
	db.AddProduct(0x0403, 0x6010, "FT2232")
	db.AddProduct(0x0403, 0x6011, "FT4232")
	db.AddProduct(0x0403, 0x6014, "FT232H")
	db.AddProduct(0x0403, 0x6015, "FT231X")

	db.AddVendor(0x067B, "Prolific")
	db.AddProduct(0x067B, 0x2303, "PL2303")
	db.AddProduct(0x067B, 0x23A3, "PL2303GC")

	db.AddVendor(0x10C4, "Silicon Labs")
	db.AddProduct(0x10C4, 0xEA60, "CP210x")
	db.AddProduct(0x10C4, 0xEA70, "CP2105")
	db.AddProduct(0x10C4, 0xEA71, "CP2108")

	db.AddVendor(0x1A86, "WCH")
	db.AddProduct(0x1A86, 0x7523, "CH340")
	db.AddProduct(0x1A86, 0x5523, "CH341")
	db.AddProduct(0x1A86, 0x55D4, "CH9102")

	db.AddVendor(0x2341, "Arduino")
	db.AddProduct(0x2341, 0x0043, "Uno R3")
	db.AddProduct(0x2341, 0x0010, "Mega 2560")

	db.AddVendor(0x303A, "Espressif")
	db.AddProduct(0x303A, 0x1001, "USB JTAG/serial")

	db.AddVendor(0x0483, "STMicroelectronics")
	db.AddProduct(0x0483, 0x5740, "Virtual COM Port")
}

// AddVendor adds or renames a vendor
func (db *BridgeDatabase) AddVendor(vendorID uint16, name string) {
	if vendor, exists := db.vendors[vendorID]; exists {
		vendor.Name = name
		return
	}
	db.vendors[vendorID] = &VendorInfo{Name: name, products: make(map[uint16]string)}
}

// AddProduct adds a product to an existing vendor
func (db *BridgeDatabase) AddProduct(vendorID, productID uint16, name string) {
	if vendor, exists := db.vendors[vendorID]; exists {
		vendor.products[productID] = name
	}
}

// Identify returns "Vendor Product" for hex VID/PID strings such as "0403"/"6001".
// Unknown products fall back to the vendor name; unknown vendors return "".
func (db *BridgeDatabase) Identify(vid, pid string) string {
	vendorID, ok := parseID(vid)
	if !ok {
		return ""
	}
	vendor, exists := db.vendors[vendorID]
	if !exists {
		return ""
	}

	if productID, ok := parseID(pid); ok {
		if product, exists := vendor.products[productID]; exists {
			return vendor.Name + " " + product
		}
	}
	return vendor.Name
}

// GetTotalProductCount returns total number of known products
func (db *BridgeDatabase) GetTotalProductCount() int {
	total := 0
	for _, vendor := range db.vendors {
		total += len(vendor.products)
	}
	return total
}

func parseID(s string) (uint16, bool) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(v), true
}

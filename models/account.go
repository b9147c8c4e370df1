package models

import "fmt"

// AccountRecord is one entry of accounts.json: a wallet plus the device
// identities provisioned for it by the setup command.
type AccountRecord struct {
	WalletAddress string  `json:"walletAddress"`
	DeviceHashes  []int64 `json:"deviceHash"`
}

// AccountUnit is one (wallet address, device identity) pair. Units are built
// once at startup and stay immutable for the life of a cycle.
type AccountUnit struct {
	Address     string
	DeviceID    int64
	DeviceCount int
}

// SessionKey is the durable-state partition key for this unit.
func (u AccountUnit) SessionKey() string {
	return fmt.Sprintf("%s_%d", u.Address, u.DeviceID)
}

// ExpandAccounts flattens account records into one unit per device identity,
// preserving file order so positional proxy assignment stays stable.
func ExpandAccounts(records []AccountRecord) []AccountUnit {
	var units []AccountUnit
	for _, rec := range records {
		for _, id := range rec.DeviceHashes {
			units = append(units, AccountUnit{
				Address:     rec.WalletAddress,
				DeviceID:    id,
				DeviceCount: len(rec.DeviceHashes),
			})
		}
	}
	return units
}

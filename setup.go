package main

import (
	"encoding/json"
	"fmt"
	"os"

	"naoris_farm/config"
	"naoris_farm/models"
	"naoris_farm/utils"
)

// runSetup provisions device identities: every wallet listed in wallets.txt
// ends up with NODE_PER_ACCOUNT device hashes in accounts.json. Existing
// hashes are kept; only the shortfall is generated.
func runSetup(cfg *config.Config) error {
	wallets, err := utils.LoadLines(cfg.Files.Wallets)
	if err != nil {
		return fmt.Errorf("load wallets: %w", err)
	}
	if len(wallets) == 0 {
		return fmt.Errorf("no wallets in %s", cfg.Files.Wallets)
	}

	accounts, err := loadAccounts(cfg.Files.Accounts)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}

	byAddress := make(map[string]int, len(accounts))
	for i, acct := range accounts {
		byAddress[acct.WalletAddress] = i
	}

	for _, wallet := range wallets {
		idx, ok := byAddress[wallet]
		if !ok {
			accounts = append(accounts, models.AccountRecord{WalletAddress: wallet})
			idx = len(accounts) - 1
			byAddress[wallet] = idx
		}
		missing := cfg.Farm.NodePerAccount - len(accounts[idx].DeviceHashes)
		for j := 0; j < missing; j++ {
			accounts[idx].DeviceHashes = append(accounts[idx].DeviceHashes, utils.GenerateDeviceHash())
		}
		utils.Logger.Infow("Provisioned device hashes",
			"address", wallet,
			"devices", len(accounts[idx].DeviceHashes))
	}

	data, err := json.MarshalIndent(accounts, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(cfg.Files.Accounts, data, 0o644); err != nil {
		return err
	}
	utils.Logger.Infow("Setup finished",
		"wallets", len(wallets),
		"nodes_per_account", cfg.Farm.NodePerAccount)
	return nil
}

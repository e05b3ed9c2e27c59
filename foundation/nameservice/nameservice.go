// Package nameservice reads a directory of wallet key files and builds a
// lookup from account address to the file name it was generated under, so
// operator tooling can show a human-readable label next to an address.
package nameservice

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bowlofstew/credo-core-node/foundation/blockchain/crypto"
)

// NameService maintains a map of accounts for name lookup.
type NameService struct {
	accounts map[crypto.Address]string
}

// New constructs a NameService from every ".ecdsa" key file found by
// walking root.
func New(root string) (*NameService, error) {
	ns := NameService{
		accounts: make(map[crypto.Address]string),
	}

	fn := func(fileName string, info fs.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}
		if info.IsDir() || path.Ext(fileName) != ".ecdsa" {
			return nil
		}

		f, err := os.Open(fileName)
		if err != nil {
			return err
		}
		defer f.Close()

		privateKey, err := crypto.LoadPrivateKey(f)
		if err != nil {
			return err
		}

		account := crypto.PublicKeyToAddress(&privateKey.PublicKey)
		ns.accounts[account] = strings.TrimSuffix(path.Base(fileName), ".ecdsa")

		return nil
	}

	if err := filepath.Walk(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Lookup returns the name recorded for account, or its address string if
// no key file for it was found.
func (ns *NameService) Lookup(account crypto.Address) string {
	name, exists := ns.accounts[account]
	if !exists {
		return account.String()
	}
	return name
}

// Copy returns a copy of the map of names by account.
func (ns *NameService) Copy() map[crypto.Address]string {
	cpy := make(map[crypto.Address]string, len(ns.accounts))
	for account, name := range ns.accounts {
		cpy[account] = name
	}
	return cpy
}

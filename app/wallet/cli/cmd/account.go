package cmd

import (
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/minervachain/minerva/foundation/blockchain/address"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Print the account for the specified wallet",
	Run:   accountRun,
}

func init() {
	rootCmd.AddCommand(accountCmd)
}

func accountRun(cmd *cobra.Command, args []string) {
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	accountID := address.FromPublicKey(privateKey.PublicKey)
	fmt.Println(accountID)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmerrifield20/pohledger/pkg/client"
	"github.com/jmerrifield20/pohledger/pkg/txn"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

const defaultNodeURL = "http://localhost:8080"

var (
	nodeURL      string
	cfgFile      string
	outputFormat string
	timeout      time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Command-line client for a ledger node",
	Long: `ledgerctl talks to a ledgerd node over its HTTP API.

It can move lamports between genesis accounts, inspect account state,
and examine or verify the node's hash chain.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.ledgerctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("ledgerctl")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if nodeURL == "" {
			nodeURL = viper.GetString("node_url")
		}
		if nodeURL == "" {
			nodeURL = defaultNodeURL
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.ledgerctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&nodeURL, "node", "", "ledger node URL (default "+defaultNodeURL+")")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "Output format: text or json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(transferCmd)
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(chainCmd)
	rootCmd.AddCommand(entryCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() (*client.Client, error) {
	return client.New(nodeURL, client.WithTimeout(timeout))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ── transfer ─────────────────────────────────────────────────────────────────

var transferCmd = &cobra.Command{
	Use:   "transfer <from> <to> <lamports>",
	Short: "Move lamports between two genesis accounts",
	Long: `Transfer asks the node to sign and execute a System Program transfer
between genesis accounts, identified by their numbers (see 'ledgerctl accounts --genesis'):

  ledgerctl transfer 1 2 10`,
	Args: cobra.ExactArgs(3),
	RunE: runTransfer,
}

func runTransfer(cmd *cobra.Command, args []string) error {
	from, err := parseAccountNumber(args[0])
	if err != nil {
		return err
	}
	to, err := parseAccountNumber(args[1])
	if err != nil {
		return err
	}
	lamports, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid lamports %q: %w", args[2], err)
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	receipt, err := c.Transfer(context.Background(), from, to, lamports)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(receipt)
	}
	fmt.Printf("Entry hash:  %s\n", receipt.EntryHash)
	fmt.Printf("Entry index: %d\n", receipt.EntryIndex)
	fmt.Printf("Signature:   %s\n", receipt.Signature)
	return nil
}

func parseAccountNumber(s string) (uint8, error) {
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid account number %q: must be 0-255", s)
	}
	return uint8(n), nil
}

// ── account / accounts ───────────────────────────────────────────────────────

var accountCmd = &cobra.Command{
	Use:   "account <base58-id>",
	Short: "Show one account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := txn.ParseIdentifier(args[0])
		if err != nil {
			return fmt.Errorf("invalid account id: %w", err)
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		acct, err := c.GetAccount(context.Background(), id)
		if err != nil {
			return err
		}

		if outputFormat == "json" {
			return printJSON(acct)
		}
		fmt.Printf("ID:         %s\n", acct.ID)
		fmt.Printf("Balance:    %d\n", acct.Balance)
		fmt.Printf("Owner:      %s\n", acct.Owner)
		fmt.Printf("Data:       %d bytes\n", len(acct.Data))
		fmt.Printf("Executable: %t\n", acct.Executable)
		return nil
	},
}

var accountsGenesis bool

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List accounts held by the node",
	Args:  cobra.NoArgs,
	RunE:  runAccounts,
}

func init() {
	accountsCmd.Flags().BoolVar(&accountsGenesis, "genesis", false, "List the genesis account numbers usable with 'transfer'")
}

func runAccounts(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx := context.Background()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if accountsGenesis {
		gen, err := c.GenesisAccounts(ctx)
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(gen)
		}
		fmt.Fprintln(w, "NUMBER\tID")
		for _, g := range gen {
			fmt.Fprintf(w, "%d\t%s\n", g.Number, g.ID)
		}
		return w.Flush()
	}

	list, err := c.ListAccounts(ctx)
	if err != nil {
		return err
	}
	if outputFormat == "json" {
		return printJSON(list)
	}
	fmt.Fprintln(w, "ID\tBALANCE\tOWNER\tDATA")
	for _, a := range list {
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\n", a.ID, a.Balance, a.Owner, len(a.Data))
	}
	return w.Flush()
}

// ── chain / entry / verify ───────────────────────────────────────────────────

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Show the hash chain's genesis, head and length",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ov, err := c.ChainOverview(context.Background())
		if err != nil {
			return err
		}

		if outputFormat == "json" {
			return printJSON(ov)
		}
		fmt.Printf("Genesis:         %s\n", ov.Genesis)
		fmt.Printf("Last hash:       %s\n", ov.LastHash)
		fmt.Printf("Entries:         %d\n", ov.Entries)
		fmt.Printf("Hashes per tick: %d\n", ov.HashesPerTick)
		return nil
	},
}

var entryCmd = &cobra.Command{
	Use:   "entry <index>",
	Short: "Show one hash chain entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid entry index %q", args[0])
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		e, err := c.GetEntry(context.Background(), idx)
		if err != nil {
			return err
		}

		if outputFormat == "json" {
			return printJSON(e)
		}
		kind := "tick"
		if len(e.Transactions) > 0 {
			kind = "record"
		}
		fmt.Printf("Index:        %d\n", e.Index)
		fmt.Printf("Kind:         %s\n", kind)
		fmt.Printf("Hash count:   %d\n", e.HashCount)
		fmt.Printf("Hash:         %s\n", e.Hash)
		fmt.Printf("Transactions: %d\n", len(e.Transactions))
		for _, tx := range e.Transactions {
			if len(tx.Signatures) > 0 {
				fmt.Printf("  %s\n", tx.Signatures[0])
			}
		}
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Ask the node to replay its hash chain from genesis",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.VerifyChain(context.Background())
		if err != nil {
			return err
		}

		if outputFormat == "json" {
			if err := printJSON(res); err != nil {
				return err
			}
		} else if res.Valid {
			fmt.Println("chain valid")
		} else {
			fmt.Printf("chain INVALID: %s\n", res.Error)
		}
		if !res.Valid {
			return fmt.Errorf("chain verification failed")
		}
		return nil
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ledgerctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ledgerctl %s\n", version)
	},
}

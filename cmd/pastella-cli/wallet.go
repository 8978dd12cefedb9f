package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pastellaproject/pastella/internal/rpcclient"
	"github.com/pastellaproject/pastella/internal/storage"
	"github.com/pastellaproject/pastella/internal/utxo"
	"github.com/pastellaproject/pastella/internal/wallet"
	"github.com/pastellaproject/pastella/pkg/tx"
	"github.com/pastellaproject/pastella/pkg/types"
	"golang.org/x/term"
)

func keystore(dataDir string) (*wallet.Keystore, error) {
	return wallet.NewKeystore(filepath.Join(dataDir, "keystore"))
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	return pw, err
}

func cmdWallet(args []string, dataDir string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: wallet create|list|new-address|address <name>")
	}
	sub, rest := args[0], args[1:]
	ks, err := keystore(dataDir)
	if err != nil {
		return err
	}

	switch sub {
	case "create":
		if len(rest) < 1 {
			return fmt.Errorf("usage: wallet create <name>")
		}
		return walletCreate(ks, rest[0])
	case "list":
		names, err := ks.List()
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	case "new-address":
		if len(rest) < 1 {
			return fmt.Errorf("usage: wallet new-address <name>")
		}
		return walletNewAddress(ks, rest[0])
	case "address":
		if len(rest) < 1 {
			return fmt.Errorf("usage: wallet address <name>")
		}
		accts, err := ks.ListAccounts(rest[0])
		if err != nil {
			return err
		}
		for _, a := range accts {
			fmt.Printf("%d\t%s\t%s\n", a.Index, a.Name, a.Address)
		}
		return nil
	default:
		return fmt.Errorf("unknown wallet subcommand: %s", sub)
	}
}

func walletCreate(ks *wallet.Keystore, name string) error {
	mnemonic, err := wallet.GenerateMnemonic()
	if err != nil {
		return fmt.Errorf("generate mnemonic: %w", err)
	}
	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		return fmt.Errorf("derive seed: %w", err)
	}

	pw, err := readPassword(fmt.Sprintf("Set a password for wallet %q: ", name))
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	if err := ks.Create(name, seed, pw, wallet.DefaultParams()); err != nil {
		return err
	}

	fmt.Println("Wallet created. Write down this recovery phrase and keep it offline:")
	fmt.Println()
	fmt.Println(mnemonic)
	fmt.Println()
	return nil
}

func walletNewAddress(ks *wallet.Keystore, name string) error {
	pw, err := readPassword(fmt.Sprintf("Password for wallet %q: ", name))
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	seed, err := ks.Load(name, pw)
	if err != nil {
		return fmt.Errorf("unlock wallet: %w", err)
	}

	master, err := wallet.NewMasterKey(seed)
	if err != nil {
		return err
	}

	idx, err := ks.GetExternalIndex(name)
	if err != nil {
		return err
	}
	hk, err := master.DeriveAddress(0, wallet.ChangeExternal, idx)
	if err != nil {
		return fmt.Errorf("derive address: %w", err)
	}

	addr := hk.Address()
	if err := ks.AddAccount(name, wallet.AccountEntry{
		Index:   idx,
		Change:  wallet.ChangeExternal,
		Name:    fmt.Sprintf("addr-%d", idx),
		Address: addr.String(),
	}); err != nil {
		return err
	}
	if err := ks.IncrementExternalIndex(name); err != nil {
		return err
	}

	fmt.Println(addr.String())
	return nil
}

// openLocalUTXOSet opens the node's own UTXO database directly. Pastella's
// thin admin API has no address-indexed balance endpoint (spec.md §6), so
// balance and coin selection work the way an offline wallet tool would:
// read the same on-disk store the daemon writes, which requires the
// daemon not be running against it concurrently.
func openLocalUTXOSet(dataDir string) (*utxo.Store, func() error, error) {
	db, err := storage.NewBadger(filepath.Join(dataDir, "chaindata"))
	if err != nil {
		return nil, nil, fmt.Errorf("open chain database (is pastellad running against this data dir?): %w", err)
	}
	return utxo.NewStore(storage.NewPrefixDB(db, []byte("utxo/"))), db.Close, nil
}

func cmdBalance(args []string, dataDir string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: balance <wallet-name>")
	}
	ks, err := keystore(dataDir)
	if err != nil {
		return err
	}
	accts, err := ks.ListAccounts(args[0])
	if err != nil {
		return err
	}

	store, closeFn, err := openLocalUTXOSet(dataDir)
	if err != nil {
		return err
	}
	defer closeFn()

	var total uint64
	for _, a := range accts {
		addr, err := types.ParseAddress(a.Address)
		if err != nil {
			continue
		}
		utxos, err := store.GetByAddress(addr)
		if err != nil {
			continue
		}
		for _, u := range utxos {
			total += u.Amount
		}
	}
	fmt.Printf("%d\n", total)
	return nil
}

func cmdSend(c *rpcclient.Client, args []string, dataDir string) error {
	fs := newFlagSet("send")
	to := fs.String("to", "", "recipient address")
	amount := fs.Uint64("amount", 0, "amount in atomic units")
	fee := fs.Uint64("fee", 0, "transaction fee in atomic units")
	if len(args) < 1 {
		return fmt.Errorf("usage: send <wallet-name> --to <addr> --amount <n> [--fee <n>]")
	}
	walletName := args[0]
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if *to == "" || *amount == 0 {
		return fmt.Errorf("--to and --amount are required")
	}

	destAddr, err := types.ParseAddress(*to)
	if err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}

	ks, err := keystore(dataDir)
	if err != nil {
		return err
	}
	pw, err := readPassword(fmt.Sprintf("Password for wallet %q: ", walletName))
	if err != nil {
		return err
	}
	seed, err := ks.Load(walletName, pw)
	if err != nil {
		return fmt.Errorf("unlock wallet: %w", err)
	}
	master, err := wallet.NewMasterKey(seed)
	if err != nil {
		return err
	}
	accts, err := ks.ListAccounts(walletName)
	if err != nil {
		return err
	}
	if len(accts) == 0 {
		return fmt.Errorf("wallet %q has no addresses; run wallet new-address first", walletName)
	}

	store, closeFn, err := openLocalUTXOSet(dataDir)
	if err != nil {
		return err
	}
	defer closeFn()

	signers := make(map[types.Address]*wallet.HDKey, len(accts))
	var available []wallet.UTXO
	for _, a := range accts {
		addr, err := types.ParseAddress(a.Address)
		if err != nil {
			continue
		}
		change, index := a.Derivation()
		hk, err := master.DeriveAddress(0, change, index)
		if err != nil {
			continue
		}
		signers[addr] = hk

		utxos, err := store.GetByAddress(addr)
		if err != nil {
			continue
		}
		for _, u := range utxos {
			available = append(available, wallet.UTXO{Outpoint: u.Outpoint, Address: u.Address, Value: u.Amount})
		}
	}

	target := *amount + *fee
	selection, err := wallet.SelectCoins(available, target)
	if err != nil {
		return fmt.Errorf("select coins: %w", err)
	}

	transaction := &tx.Transaction{
		Outputs:   []tx.Output{{Address: destAddr, Amount: *amount}},
		Fee:       *fee,
		Timestamp: uint64(time.Now().UnixMilli()),
		Nonce:     randomNonce(),
		ExpiresAt: uint64(time.Now().Add(time.Hour).UnixMilli()),
		Tag:       tx.TagTransaction,
	}
	if selection.Change > 0 {
		transaction.Outputs = append(transaction.Outputs, tx.Output{Address: selection.Inputs[0].Address, Amount: selection.Change})
	}
	for _, u := range selection.Inputs {
		signer, ok := signers[u.Address]
		if !ok {
			return fmt.Errorf("no signer derived for address %s", u.Address)
		}
		transaction.Inputs = append(transaction.Inputs, tx.Input{
			TxID:        u.Outpoint.TxID,
			OutputIndex: u.Outpoint.Index,
			PublicKey:   signer.PublicKeyBytes(),
		})
	}

	id := transaction.ID()
	for i, u := range selection.Inputs {
		signer, _ := signers[u.Address]
		sig, err := signer.Signer()
		if err != nil {
			return fmt.Errorf("derive signer: %w", err)
		}
		transaction.Inputs[i].Signature, err = sig.Sign(id[:])
		if err != nil {
			return fmt.Errorf("sign input %d: %w", i, err)
		}
	}

	result, err := c.SubmitTransaction(transaction)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func randomNonce() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// newFlagSet builds a flagSetNoExit, which doesn't print its own usage or
// exit the process on a parse error, since the caller reports errors
// uniformly through main's error path.
func newFlagSet(name string) *flagSetNoExit {
	return &flagSetNoExit{name: name}
}

// flagSetNoExit is a tiny hand-rolled --key value / --key=value parser for
// subcommand flags, since flag.FlagSet's default error handling calls
// os.Exit, which would bypass main's uniform error reporting.
type flagSetNoExit struct {
	name   string
	values map[string]*string
	uints  map[string]*uint64
}

func (f *flagSetNoExit) String(name, def, _ string) *string {
	if f.values == nil {
		f.values = map[string]*string{}
	}
	v := def
	f.values[name] = &v
	return &v
}

func (f *flagSetNoExit) Uint64(name string, def uint64, _ string) *uint64 {
	if f.uints == nil {
		f.uints = map[string]*uint64{}
	}
	v := def
	f.uints[name] = &v
	return &v
}

func (f *flagSetNoExit) Parse(args []string) error {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			return fmt.Errorf("unexpected argument %q", arg)
		}
		key, val, hasEq := strings.Cut(arg[2:], "=")
		if !hasEq {
			if i+1 >= len(args) {
				return fmt.Errorf("flag --%s requires a value", key)
			}
			i++
			val = args[i]
		}
		if p, ok := f.values[key]; ok {
			*p = val
			continue
		}
		if p, ok := f.uints[key]; ok {
			n, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				return fmt.Errorf("flag --%s: %w", key, err)
			}
			*p = n
			continue
		}
		return fmt.Errorf("unknown flag --%s", key)
	}
	return nil
}

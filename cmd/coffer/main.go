// Command coffer is a manual-flag CLI harness driving the vault engine end
// to end, standing in for the graphical shell the engine is deliberately
// agnostic to. Its dispatch structure (userError, handleError, one
// flag.FlagSet per subcommand) mirrors cmd/pm's.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/term"

	"github.com/google/uuid"

	"github.com/loganross/coffer/internal/auditlog"
	"github.com/loganross/coffer/internal/authenticator"
	"github.com/loganross/coffer/internal/keyderiv"
	"github.com/loganross/coffer/internal/secretstore"
	"github.com/loganross/coffer/internal/vaultmanager"
)

type userError struct {
	msg string
}

func (e userError) Error() string { return e.msg }

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	mgr, log, err := newManager()
	if err != nil {
		handleError(err)
	}
	defer log.Close()

	switch os.Args[1] {
	case "add":
		err = runAdd(mgr, os.Args[2:])
	case "lock":
		err = runLock(mgr, os.Args[2:])
	case "unlock":
		err = runUnlock(mgr, os.Args[2:])
	case "change-password":
		err = runChangePassword(mgr, os.Args[2:])
	case "remove":
		err = runRemove(mgr, os.Args[2:])
	case "lock-all":
		err = runLockAll(mgr, os.Args[2:])
	case "list":
		err = runList(mgr, os.Args[2:])
	case "history":
		err = runHistory(log, os.Args[2:])
	case "recover":
		err = runRecover(mgr, os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		handleError(err)
	}
}

func handleError(err error) {
	if err == nil {
		return
	}
	var uerr userError
	if errors.As(err, &uerr) {
		fmt.Fprintln(os.Stderr, uerr.Error())
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "unexpected error: %v\n", err)
	os.Exit(2)
}

// appDataDir resolves the stable user-scoped location vaults.json and
// audit.db live under (spec §4.7, §6).
func appDataDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(base, "coffer"), nil
}

func newManager() (*vaultmanager.Manager, *auditlog.AuditLog, error) {
	dir, err := appDataDir()
	if err != nil {
		return nil, nil, err
	}

	log, err := auditlog.Open(filepath.Join(dir, "audit.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("open audit log: %w", err)
	}

	store := secretstore.NewPlatformStore()
	auth := authenticator.New(store, keyderiv.StrategyHKDF)

	mgr, err := vaultmanager.New(dir, store, auth, log)
	if err != nil {
		log.Close()
		return nil, nil, fmt.Errorf("load vault manager: %w", err)
	}
	return mgr, log, nil
}

func runAdd(mgr *vaultmanager.Manager, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var name, dir string
	var biometric, lockNow bool
	var idleMinutes int
	fs.StringVar(&name, "name", "", "vault name")
	fs.StringVar(&dir, "dir", "", "folder to protect")
	fs.BoolVar(&biometric, "biometric", false, "enroll biometric unlock")
	fs.IntVar(&idleMinutes, "idle-minutes", 0, "auto-lock idle minutes (0 disables)")
	fs.BoolVar(&lockNow, "lock-now", false, "lock immediately after setup")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if name == "" || dir == "" {
		return userError{msg: "missing required flags: --name and --dir"}
	}
	if fs.NArg() != 0 {
		return userError{msg: "unexpected positional arguments"}
	}

	pw, err := promptPassword("Set vault password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	defer zeroBytes(pw)

	confirm, err := promptPassword("Confirm vault password: ")
	if err != nil {
		return fmt.Errorf("read confirmation: %w", err)
	}
	defer zeroBytes(confirm)
	if string(pw) != string(confirm) {
		return userError{msg: "passwords do not match"}
	}

	v, err := mgr.AddVault(name, dir, string(pw), biometric, idleMinutes, lockNow)
	if err != nil {
		return fmt.Errorf("add vault: %w", err)
	}
	fmt.Printf("vault %s added (id=%s, state=%s)\n", v.Name, v.ID, v.State)
	return nil
}

func runLock(mgr *vaultmanager.Manager, args []string) error {
	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var id string
	fs.StringVar(&id, "id", "", "vault id")
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	vaultID, err := parseID(id)
	if err != nil {
		return err
	}

	pw, err := promptPassword("Vault password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	defer zeroBytes(pw)

	if err := mgr.LockVault(vaultID, string(pw), reportProgress); err != nil {
		return fmt.Errorf("lock vault: %w", err)
	}
	fmt.Println("locked")
	return nil
}

func runUnlock(mgr *vaultmanager.Manager, args []string) error {
	fs := flag.NewFlagSet("unlock", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var id string
	var biometric bool
	fs.StringVar(&id, "id", "", "vault id")
	fs.BoolVar(&biometric, "biometric", false, "use biometric unlock")
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	vaultID, err := parseID(id)
	if err != nil {
		return err
	}

	if biometric {
		if err := mgr.UnlockVaultBiometric(vaultID, reportProgress); err != nil {
			return fmt.Errorf("unlock vault: %w", err)
		}
		fmt.Println("unlocked")
		return nil
	}

	pw, err := promptPassword("Vault password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	defer zeroBytes(pw)

	if err := mgr.UnlockVaultPassword(vaultID, string(pw), reportProgress); err != nil {
		return fmt.Errorf("unlock vault: %w", err)
	}
	fmt.Println("unlocked")
	return nil
}

func runChangePassword(mgr *vaultmanager.Manager, args []string) error {
	fs := flag.NewFlagSet("change-password", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var id string
	fs.StringVar(&id, "id", "", "vault id")
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	vaultID, err := parseID(id)
	if err != nil {
		return err
	}

	cur, err := promptPassword("Current vault password: ")
	if err != nil {
		return fmt.Errorf("read current password: %w", err)
	}
	defer zeroBytes(cur)
	next, err := promptPassword("New vault password: ")
	if err != nil {
		return fmt.Errorf("read new password: %w", err)
	}
	defer zeroBytes(next)
	confirm, err := promptPassword("Confirm new vault password: ")
	if err != nil {
		return fmt.Errorf("read confirmation: %w", err)
	}
	defer zeroBytes(confirm)
	if string(next) != string(confirm) {
		return userError{msg: "passwords do not match"}
	}

	if err := mgr.ChangePassword(vaultID, string(cur), string(next)); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	fmt.Println("password changed")
	return nil
}

func runRemove(mgr *vaultmanager.Manager, args []string) error {
	fs := flag.NewFlagSet("remove", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var id string
	var biometric bool
	fs.StringVar(&id, "id", "", "vault id")
	fs.BoolVar(&biometric, "biometric", false, "use biometric unlock if the vault is locked")
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	vaultID, err := parseID(id)
	if err != nil {
		return err
	}

	var pwPtr *string
	if !biometric {
		pw, err := promptPassword("Vault password (blank to try biometrics): ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		defer zeroBytes(pw)
		if len(pw) > 0 {
			s := string(pw)
			pwPtr = &s
		}
	}

	if err := mgr.RemoveVault(vaultID, pwPtr); err != nil {
		return fmt.Errorf("remove vault: %w", err)
	}
	fmt.Println("removed")
	return nil
}

func runLockAll(mgr *vaultmanager.Manager, args []string) error {
	fs := flag.NewFlagSet("lock-all", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}

	pw, err := promptPassword("Vault password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	defer zeroBytes(pw)

	if err := mgr.LockAll(string(pw)); err != nil {
		return fmt.Errorf("lock all: %w", err)
	}
	fmt.Println("locked all")
	return nil
}

func runList(mgr *vaultmanager.Manager, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}

	for _, v := range mgr.List() {
		fmt.Printf("%s  %-20s %-10s %s\n", v.ID, v.Name, v.State, v.FolderPath)
	}
	return nil
}

func runHistory(log *auditlog.AuditLog, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var id string
	var limit int
	fs.StringVar(&id, "id", "", "vault id")
	fs.IntVar(&limit, "limit", 50, "maximum events to show")
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	vaultID, err := parseID(id)
	if err != nil {
		return err
	}

	events, err := log.Recent(vaultID, limit)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	for _, e := range events {
		fmt.Printf("%s  %-12s %s\n", e.At.Format("2006-01-02T15:04:05Z"), e.Kind, e.Detail)
	}
	return nil
}

func runRecover(mgr *vaultmanager.Manager, args []string) error {
	fs := flag.NewFlagSet("recover", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}

	interrupted, err := mgr.InterruptedVaults()
	if err != nil {
		return fmt.Errorf("scan for interrupted vaults: %w", err)
	}
	if len(interrupted) == 0 {
		fmt.Println("no interrupted vaults")
		return nil
	}
	for _, v := range interrupted {
		fmt.Printf("%s  %-20s %s (interrupted)\n", v.ID, v.Name, v.FolderPath)
	}
	return nil
}

func reportProgress(done, total int) {
	fmt.Fprintf(os.Stderr, "\r%d/%d files", done, total)
	if done == total {
		fmt.Fprintln(os.Stderr)
	}
}

func parseID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, userError{msg: "missing required flag: --id"}
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, userError{msg: "invalid vault id"}
	}
	return id, nil
}

func promptPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: coffer <command> [flags]")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  add    --name NAME --dir PATH [--biometric] [--idle-minutes N] [--lock-now]")
	fmt.Fprintln(os.Stderr, "  lock   --id UUID")
	fmt.Fprintln(os.Stderr, "  unlock --id UUID [--biometric]")
	fmt.Fprintln(os.Stderr, "  change-password --id UUID")
	fmt.Fprintln(os.Stderr, "  remove --id UUID [--biometric]")
	fmt.Fprintln(os.Stderr, "  lock-all")
	fmt.Fprintln(os.Stderr, "  list")
	fmt.Fprintln(os.Stderr, "  history --id UUID [--limit N]")
	fmt.Fprintln(os.Stderr, "  recover")
}

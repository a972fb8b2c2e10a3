// govern-verify is the batch verification tool run in CI and by auditors. It
// checks policy coverage against observed decision logs, policy catalog
// integrity, receipt chain integrity, run ledgers, and artifact signatures.
// Any failed pass exits nonzero.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"govern/internal/coverage"
	"govern/internal/ledger"
	"govern/internal/ledger/hashchain"
	"govern/internal/policy"
	"govern/internal/signature"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "coverage":
		err = runCoverage(os.Args[2:])
	case "manifest":
		err = runManifest(os.Args[2:])
	case "lint":
		err = runLint(os.Args[2:])
	case "chain":
		err = runChain(os.Args[2:])
	case "signatures":
		err = runSignatures(os.Args[2:])
	case "all":
		err = runAll(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "govern-verify:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: govern-verify <command> [flags]

commands:
  coverage    verify observed decision logs cover every required hit
  manifest    write the required-hits manifest for the registry and catalog
  lint        flag changed actions whose tests look outcome-blind
  chain       verify receipt chain and run ledger integrity
  signatures  verify detached signatures under an artifact tree
  all         run coverage, chain, and signature passes together`)
}

// deriveRequired loads the registry and expands required hits over the
// catalog's action set.
func deriveRequired(registryPath, catalogRoot string) (*coverage.Required, error) {
	registry, err := policy.Load(registryPath)
	if err != nil {
		return nil, err
	}
	catalog := coverage.Catalog{Root: catalogRoot}
	actions, err := catalog.Actions()
	if err != nil {
		return nil, err
	}
	return coverage.DeriveRequiredHits(registry, actions)
}

func runCoverage(args []string) error {
	fs := flag.NewFlagSet("coverage", flag.ExitOnError)
	registryPath := fs.String("registry", "", "policy registry snapshot")
	catalogRoot := fs.String("catalog", "", "action catalog root")
	manifestPath := fs.String("manifest", "", "required-hits manifest (overrides registry+catalog derivation)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	required, err := loadRequired(*manifestPath, *registryPath, *catalogRoot)
	if err != nil {
		return err
	}
	observed, err := coverage.ReadLogFiles(fs.Args()...)
	if err != nil {
		return err
	}

	result := coverage.VerifyCoverage(required, observed)
	fmt.Print(result.Report())
	if !result.OK() {
		return fmt.Errorf("%d required hits unobserved", len(result.Missing))
	}
	return nil
}

func loadRequired(manifestPath, registryPath, catalogRoot string) (*coverage.Required, error) {
	if manifestPath != "" {
		raw, err := os.ReadFile(manifestPath)
		if err != nil {
			return nil, fmt.Errorf("read manifest: %w", err)
		}
		return coverage.UnmarshalManifest(raw)
	}
	return deriveRequired(registryPath, catalogRoot)
}

func runManifest(args []string) error {
	fs := flag.NewFlagSet("manifest", flag.ExitOnError)
	registryPath := fs.String("registry", "", "policy registry snapshot")
	catalogRoot := fs.String("catalog", "", "action catalog root")
	outPath := fs.String("out", "", "manifest output path (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	required, err := deriveRequired(*registryPath, *catalogRoot)
	if err != nil {
		return err
	}
	raw, err := coverage.MarshalManifest(required)
	if err != nil {
		return err
	}
	if *outPath == "" {
		fmt.Println(string(raw))
		return nil
	}
	return os.WriteFile(*outPath, raw, 0o644)
}

func runLint(args []string) error {
	fs := flag.NewFlagSet("lint", flag.ExitOnError)
	registryPath := fs.String("registry", "", "policy registry snapshot")
	catalogRoot := fs.String("catalog", "", "action catalog root")
	changed := fs.String("changed", "", "comma-separated changed action ids")
	if err := fs.Parse(args); err != nil {
		return err
	}

	required, err := deriveRequired(*registryPath, *catalogRoot)
	if err != nil {
		return err
	}

	var changedActions []string
	for _, action := range strings.Split(*changed, ",") {
		if action = strings.TrimSpace(action); action != "" {
			changedActions = append(changedActions, action)
		}
	}

	result, err := coverage.LintPolicyTests(required, changedActions, fs.Args())
	if err != nil {
		return err
	}
	fmt.Print(result.Report())
	// Advisory only: findings print but never fail the run.
	return nil
}

func runChain(args []string) error {
	fs := flag.NewFlagSet("chain", flag.ExitOnError)
	receiptRoot := fs.String("receipts", "", "receipt store root")
	runLedger := fs.String("run-ledger", "", "run ledger file to verify")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return verifyChain(*receiptRoot, *runLedger)
}

func verifyChain(receiptRoot, runLedger string) error {
	if receiptRoot != "" {
		store, err := ledger.NewFileStore(receiptRoot)
		if err != nil {
			return err
		}
		l, err := ledger.New(store)
		if err != nil {
			return err
		}
		ok, err := l.VerifyChain()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("receipt chain under %s is broken", receiptRoot)
		}
		fmt.Printf("receipt chain under %s verified\n", receiptRoot)
	}
	if runLedger != "" {
		ok, err := hashchain.VerifyFile(runLedger)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("run ledger %s is broken", runLedger)
		}
		fmt.Printf("run ledger %s verified\n", runLedger)
	}
	return nil
}

func runSignatures(args []string) error {
	fs := flag.NewFlagSet("signatures", flag.ExitOnError)
	root := fs.String("root", "", "artifact tree root")
	keyPath := fs.String("pubkey", "", "ed25519 public key file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return verifySignatures(*root, *keyPath)
}

func verifySignatures(root, keyPath string) error {
	key, err := signature.LoadPublicKey(keyPath)
	if err != nil {
		return err
	}
	result, err := signature.VerifyTree(root, key)
	if err != nil {
		return err
	}
	fmt.Print(result.Report())
	if !result.OK() {
		return fmt.Errorf("%d bad signatures under %s", len(result.Bad), root)
	}
	return nil
}

// runAll executes the coverage, chain, and signature passes concurrently and
// fails if any pass fails.
func runAll(args []string) error {
	fs := flag.NewFlagSet("all", flag.ExitOnError)
	registryPath := fs.String("registry", "", "policy registry snapshot")
	catalogRoot := fs.String("catalog", "", "action catalog root")
	receiptRoot := fs.String("receipts", "", "receipt store root")
	runLedger := fs.String("run-ledger", "", "run ledger file to verify")
	sigRoot := fs.String("sig-root", "", "artifact tree for signature pass")
	keyPath := fs.String("pubkey", "", "ed25519 public key file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var g errgroup.Group
	g.Go(func() error {
		required, err := deriveRequired(*registryPath, *catalogRoot)
		if err != nil {
			return err
		}
		observed, err := coverage.ReadLogFiles(fs.Args()...)
		if err != nil {
			return err
		}
		result := coverage.VerifyCoverage(required, observed)
		fmt.Print(result.Report())
		if !result.OK() {
			return fmt.Errorf("%d required hits unobserved", len(result.Missing))
		}
		return nil
	})
	g.Go(func() error { return verifyChain(*receiptRoot, *runLedger) })
	if *sigRoot != "" {
		g.Go(func() error { return verifySignatures(*sigRoot, *keyPath) })
	}
	return g.Wait()
}

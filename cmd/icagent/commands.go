package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/colorfulnotion/icagent/candid"
	"github.com/colorfulnotion/icagent/certificate"
	"github.com/colorfulnotion/icagent/common"
	"github.com/colorfulnotion/icagent/log"
	"github.com/colorfulnotion/icagent/networks"
	"github.com/colorfulnotion/icagent/principal"
	"github.com/colorfulnotion/icagent/requestid"
	"github.com/colorfulnotion/icagent/storage"
	"github.com/colorfulnotion/icagent/telemetry"
	"github.com/spf13/cobra"
)

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <hex|@file>",
		Short: "Decode a Candid message against its own type table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readBytesArg(args[0])
			if err != nil {
				return err
			}
			types, values, err := candid.DecodeUntyped(data)
			if err != nil {
				return err
			}
			sigs := make([]string, len(types))
			for i, t := range types {
				sigs[i] = t.String()
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "types: (%s)\n", strings.Join(sigs, ", "))
			fmt.Fprintln(out, candid.FormatArgs(values))
			return nil
		},
	}
}

func newRequestIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requestid <json-file|->",
		Short: "Compute the request id of a JSON request content",
		Long: `Strings prefixed with 0x are bytes, canister_id and sender are principals in
text form, and numbers are unsigned integers.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := readRequestJSON(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			id, err := requestid.Compute(fields)
			if err != nil {
				return err
			}
			if _, err := log.Event(log.CLIModule, telemetry.EventRequestID, map[string]string{"request_id": id.String()}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id.String())
			return nil
		},
	}
}

func newPrincipalCmd() *cobra.Command {
	var derKey bool
	cmd := &cobra.Command{
		Use:   "principal <text|hex>",
		Short: "Convert a principal between text and hex",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePrincipalArg(args[0], derKey)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "text: %s\n", p.String())
			fmt.Fprintf(out, "hex:  %s\n", p.Hex())
			return nil
		},
	}
	cmd.Flags().BoolVar(&derKey, "self-authenticating", false, "treat the argument as a hex DER public key")
	return cmd
}

func newTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree <cert-hex|@file>",
		Short: "Print the hash tree of a certificate without verifying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readBytesArg(args[0])
			if err != nil {
				return err
			}
			cert, err := certificate.Decode(data)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, cert.Tree.Render())
			if d := cert.Delegation; d != nil {
				fmt.Fprintf(out, "delegated by subnet %s\n", common.Bytes2Hex(d.SubnetID))
			}
			return nil
		},
	}
}

type verifyFlags struct {
	canister    string
	maxAge      time.Duration
	noTimeCheck bool
	cacheTTL    time.Duration
}

func (f *verifyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.canister, "canister", "", "canister the certificate answers for (text form)")
	cmd.Flags().DurationVar(&f.maxAge, "max-age", certificate.DefaultMaxAge, "oldest acceptable certificate time")
	cmd.Flags().BoolVar(&f.noTimeCheck, "no-time-check", false, "skip the certificate freshness check")
	cmd.Flags().DurationVar(&f.cacheTTL, "cache-ttl", 24*time.Hour, "lifetime of cached delegations, 0 keeps them forever")
	cmd.MarkFlagRequired("canister")
}

// verifyArg verifies the certificate argument with the configured trust
// anchor, closing any cache it opened.
func verifyArg(cmd *cobra.Command, g *globalFlags, f *verifyFlags, arg string) (*certificate.Certificate, error) {
	data, err := readBytesArg(arg)
	if err != nil {
		return nil, err
	}
	canister, err := principal.FromText(f.canister)
	if err != nil {
		return nil, fmt.Errorf("--canister: %w", err)
	}
	rootKey, err := resolveRootKey(g)
	if err != nil {
		return nil, err
	}

	opts := []certificate.Option{certificate.WithMaxAge(f.maxAge)}
	if f.noTimeCheck {
		opts = append(opts, certificate.WithoutTimeCheck())
	}
	if g.cacheDir != "" {
		store, err := storage.NewPersistenceStore(g.cacheDir)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		opts = append(opts, certificate.WithDelegationCache(storage.NewDelegationCache(store, f.cacheTTL)))
	}

	start := time.Now()
	cert, err := certificate.Verify(cmd.Context(), data, rootKey, canister, opts...)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		log.Event(log.CertModule, telemetry.EventCertificateRejected,
			map[string]string{"canister": canister.String(), "reason": err.Error()}, "elapsed", elapsed)
		return nil, err
	}
	log.Event(log.CertModule, telemetry.EventCertificateVerified,
		map[string]string{"canister": canister.String()}, "elapsed", elapsed)
	return cert, nil
}

func resolveRootKey(g *globalFlags) ([]byte, error) {
	if g.rootKey != "" {
		key, err := common.DecodeHex(g.rootKey)
		if err != nil {
			return nil, fmt.Errorf("--root-key: %w", err)
		}
		return key, nil
	}
	n, err := networks.ReadNetwork(g.network)
	if err != nil {
		return nil, err
	}
	return n.TrustedRootKey()
}

func newVerifyCmd(g *globalFlags) *cobra.Command {
	f := &verifyFlags{}
	cmd := &cobra.Command{
		Use:   "verify <cert-hex|@file>",
		Short: "Verify a certificate against the network root key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cert, err := verifyArg(cmd, g, f, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "verified: root %s\n", common.Bytes2Hex(cert.RootHash()))
			if raw, ok := cert.LookupString("time"); ok {
				if ns, err := decodeTime(raw); err == nil {
					fmt.Fprintf(out, "time: %s\n", ns.UTC().Format(time.RFC3339Nano))
				}
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newLookupCmd(g *globalFlags) *cobra.Command {
	f := &verifyFlags{}
	var raw bool
	cmd := &cobra.Command{
		Use:   "lookup <cert-hex|@file> <label>...",
		Short: "Verify a certificate and print the leaf at a path",
		Long: `Labels prefixed with 0x are bytes, labels starting with "principal:" are
principals in text form, anything else is text.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := parsePath(args[1:])
			if err != nil {
				return err
			}
			cert, err := verifyArg(cmd, g, f, args[0])
			if err != nil {
				return err
			}
			value, ok := cert.Lookup(path...)
			if !ok {
				return fmt.Errorf("no leaf at %s", strings.Join(args[1:], "/"))
			}
			out := cmd.OutOrStdout()
			if raw {
				fmt.Fprintln(out, common.Bytes2Hex(value))
				return nil
			}
			fmt.Fprintln(out, displayValue(value))
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "hex", false, "print the leaf as hex")
	f.register(cmd)
	return cmd
}

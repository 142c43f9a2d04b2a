package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"sigs.k8s.io/controller-runtime/pkg/manager/signals"

	"github.com/l7mp/dflow/pkg/api/graph/v1alpha1"
	"github.com/l7mp/dflow/pkg/auth"
	"github.com/l7mp/dflow/pkg/config"
	"github.com/l7mp/dflow/pkg/dataflow"
	"github.com/l7mp/dflow/pkg/server"
	"github.com/l7mp/dflow/pkg/visualize"
)

func newServeCmd() *cobra.Command {
	v := config.New()
	var configFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Build the graph and serve its views",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLog := logger.WithName("setup")
			setupLog.Info(fmt.Sprintf("starting dflow %s", buildInfo().String()))

			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			c, err := config.Load(v, configFile)
			if err != nil {
				setupLog.Error(err, "unable to load configuration")
				return err
			}

			spec, err := v1alpha1.Load(c.Graph)
			if err != nil {
				setupLog.Error(err, "unable to load graph")
				return err
			}

			g, err := dataflow.Build(spec, dataflow.Options{Logger: logger})
			if err != nil {
				setupLog.Error(err, "unable to build graph")
				return err
			}

			var authn *auth.JWTAuthenticator
			if c.PublicKey != "" {
				key, err := auth.LoadPublicKey(c.PublicKey)
				if err != nil {
					setupLog.Error(err, "unable to load public key")
					return err
				}
				authn = auth.NewJWTAuthenticator(key)
			} else {
				setupLog.Info("authentication disabled")
			}

			srv, err := server.NewServer(dataflow.NewExecutor(g, logger), server.Config{
				Addr:          c.Addr,
				Name:          strings.TrimSuffix(filepath.Base(c.Graph), filepath.Ext(c.Graph)),
				Paths:         spec.Paths,
				SinkBuffer:    c.SinkBuffer,
				MessageRate:   c.MessageRate,
				MessageBurst:  c.MessageBurst,
				Authenticator: authn,
				Logger:        logger,
			})
			if err != nil {
				setupLog.Error(err, "unable to set up server")
				return err
			}

			ctx := signals.SetupSignalHandler()
			if err := srv.Start(ctx); err != nil {
				setupLog.Error(err, "problem running server")
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Config file (YAML, JSON or TOML).")
	cmd.Flags().String(config.AddrKey, config.DefaultAddr, "The address the server binds to.")
	cmd.Flags().String(config.GraphKey, "", "Graph spec file.")
	cmd.Flags().Int(config.SinkBufferKey, dataflow.DefaultSinkBuffer,
		"Number of envelopes queued per session before the session is dropped.")
	cmd.Flags().Float64(config.MessageRateKey, 0,
		"Inbound envelopes per second allowed per session. Zero means no limit.")
	cmd.Flags().Int(config.MessageBurstKey, config.DefaultMessageBurst, "Burst of the per-session rate limit.")
	cmd.Flags().String(config.PublicKeyKey, "",
		"PEM-encoded RSA public key for validating bearer tokens. Authentication is disabled if empty.")

	return cmd
}

func newRenderCmd() *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "render <graph-file>",
		Short: "Render a graph spec as a diagram",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := visualize.NewGenerator(format)
			if err != nil {
				return err
			}

			spec, err := v1alpha1.Load(args[0])
			if err != nil {
				return err
			}
			g, err := dataflow.Build(spec, dataflow.Options{Logger: logger})
			if err != nil {
				return err
			}

			name := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			out := gen.Generate(visualize.BuildGraph(name, g, spec.Paths))

			if output == "" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
				return err
			}
			return os.WriteFile(output, []byte(out), 0o644)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "dot", "Diagram format: dot or mermaid.")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file. Defaults to stdout.")

	return cmd
}

func newKeygenCmd() *cobra.Command {
	var bits int
	var privFile, pubFile string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an RSA key pair for signing and validating tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			privPEM, pubPEM, err := auth.GenerateKeyPair(bits)
			if err != nil {
				return err
			}
			if err := os.WriteFile(privFile, privPEM, 0o600); err != nil {
				return fmt.Errorf("failed to write private key: %w", err)
			}
			if err := os.WriteFile(pubFile, pubPEM, 0o644); err != nil {
				return fmt.Errorf("failed to write public key: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n", privFile, pubFile)
			return nil
		},
	}

	cmd.Flags().IntVar(&bits, "bits", auth.DefaultKeyBits, "Key size.")
	cmd.Flags().StringVar(&privFile, "private-key", "dflow.key", "Private key output file.")
	cmd.Flags().StringVar(&pubFile, "public-key", "dflow.pub", "Public key output file.")

	return cmd
}

func newTokenCmd() *cobra.Command {
	var privFile, user string
	var grantFlags []string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token",
		Example: `  # full access
  dflow token --user alice
  # read /votes, read-write /stories
  dflow token --user bob --grant /votes=Read --grant /stories=ReadWrite`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			grants, err := parseGrants(grantFlags)
			if err != nil {
				return err
			}

			key, err := auth.LoadPrivateKey(privFile)
			if err != nil {
				return err
			}

			token, err := auth.NewTokenGenerator(key).GenerateToken(user, grants, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&privFile, "private-key", "dflow.key", "PEM-encoded RSA private key.")
	cmd.Flags().StringVar(&user, "user", "", "User name.")
	cmd.Flags().StringArrayVar(&grantFlags, "grant", nil,
		"Grant a permission on a path as <path>=<Read|Write|ReadWrite>. The path * matches every path. "+
			"Without grants the token allows whatever the paths allow.")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime. Zero issues a token that does not expire.")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func parseGrants(flags []string) ([]auth.Grant, error) {
	grants := make([]auth.Grant, 0, len(flags))
	for _, f := range flags {
		path, perm, ok := strings.Cut(f, "=")
		if !ok || path == "" {
			return nil, fmt.Errorf("invalid grant %q: expected <path>=<permission>", f)
		}
		p := v1alpha1.Permission(perm)
		if p != v1alpha1.Read && p != v1alpha1.Write && p != v1alpha1.ReadWrite {
			return nil, fmt.Errorf("invalid permission %q in grant %q", perm, f)
		}
		grants = append(grants, auth.Grant{Path: path, Permission: p})
	}
	return grants, nil
}

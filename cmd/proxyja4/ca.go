package main

// Root CA generation, trust installation and sibling CA bootstrap

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tturner/proxyja4/internal/ca"
	"github.com/tturner/proxyja4/internal/readiness"
	"github.com/tturner/proxyja4/internal/trust"
)

type caFlags struct {
	auto      bool
	noInstall bool
}

func newCACmd(g *globalFlags) *cobra.Command {
	flags := &caFlags{}

	cmd := &cobra.Command{
		Use:   "ca",
		Short: "Generate the shared root CA and install trust anchors",
		Long: `Generate the shared root CA once and install it into the system trust store.

An existing valid CA is reused unchanged, so proxies and clients that already
trust it keep working. The runtime directories and a default squid config are
created when missing.

With --auto the command then waits for the CA files that the mitmproxy and
squid containers write on their first start, installs each one as it appears,
refreshes the trust store, and stays resident until interrupted.`,
		Example: `  # Generate the CA and trust it locally
  proxyja4 ca

  # Container entrypoint: also pick up sibling proxy CAs and stay up
  proxyja4 ca --auto`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCA(cmd, g, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.auto, "auto", false, "Wait for sibling proxy CAs, install them and stay resident")
	cmd.Flags().BoolVar(&flags.noInstall, "no-install", false, "Do not install the generated CA into the trust store")

	return cmd
}

func runCA(cmd *cobra.Command, g *globalFlags, flags *caFlags) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	log := g.logger(cmd, cfg, "ca")
	defer log.Close()
	ctx := cmd.Context()

	created, err := ca.EnsureLayout(cfg.CA.Root)
	for _, path := range created {
		log.Info("Created %s", path)
	}
	if err != nil {
		log.Error("Could not prepare runtime layout: %v", err)
	}

	authority := ca.New(cfg.CAOptions())
	material, err := authority.Ensure()
	if err != nil {
		// Continue: the validation below reports what is missing.
		log.Error("%v", err)
	} else if material.Generated {
		log.Info("Generated CA key: %s", material.KeyPath)
		log.Info("Generated CA cert: %s", material.CertPath)
	} else {
		log.Info("CA key and certificate already exist")
	}

	caReady := true
	switch {
	case !authority.Exists():
		log.Error("CA certificate or key not found in %s. Check directory permissions and rerun.", cfg.CAOptions().Dir)
		caReady = false
	case !ca.IsValidCA(authority.CertPath()):
		log.Error("CA certificate %s is missing or invalid. Squid will fail to start.", authority.CertPath())
		caReady = false
	default:
		log.Info("CA certificate %s is valid", authority.CertPath())
		if material != nil {
			log.Verbose("Fingerprint (SHA-256): %s", material.Fingerprint())
			log.Verbose("Valid until %s", material.NotAfter().Format("2006-01-02"))
		}
	}

	installer := trust.NewInstaller(cfg.Trust.Dir, nil, log)
	installer.RefreshCommand = cfg.Trust.RefreshCommand

	switch {
	case flags.noInstall:
		log.Verbose("Skipping trust store installation")
	case installer.GOOS != "linux":
		log.Info("Skipping CA installation on %s. This is handled in the container.", installer.GOOS)
	case caReady && installer.Install(authority.CertPath(), cfg.Trust.InstalledName):
		installer.RefreshTrust(ctx)
	default:
		log.Info("No CA certificate found to install")
	}

	if flags.auto {
		log.Info("Running in automatic mode, waiting for proxy CA certificates...")
		poller := readiness.NewPoller(cfg.Trust.PollInterval, cfg.Trust.WaitTimeout)
		b := trust.NewBootstrap(installer, poller, log)
		b.Run(ctx, cfg.Trust.Siblings)
		b.Serve(ctx, cfg.Trust.Heartbeat)
		return nil
	}

	if !caReady {
		return fmt.Errorf("CA files missing or invalid, expected key %s and cert %s", authority.KeyPath(), authority.CertPath())
	}
	log.Info("CA files ready:")
	log.Info("   Key: %s", authority.KeyPath())
	log.Info("   Cert: %s", authority.CertPath())
	return nil
}

// Command proofsetup runs the groth16 circuit setup and writes the resulting
// parameters to disk: the full prover parameters for channel members, and the
// verifying key alone for repository operators.
//
// The setup is not multi-party. Whoever runs it can forge proofs, so a real
// deployment must run it inside a ceremony or a party trusted by the
// repository operator. Verifiers only ever need the verifying-key file.
package main

import (
	"flag"
	"os"

	"go.uber.org/zap"

	"github.com/hushwire/hushwire/pkg/proof"
)

func main() {
	var (
		paramsPath = flag.String("params", "proof-params.bin", "output file for full prover parameters")
		vkPath     = flag.String("verifying-key", "proof-vk.bin", "output file for the verifying key")
	)
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()
	sugar := log.Sugar()

	sugar.Info("compiling circuit and running setup, this takes a while")
	g, err := proof.Setup()
	if err != nil {
		sugar.Fatalw("setup failed", "err", err)
	}

	if err := g.SaveFile(*paramsPath); err != nil {
		sugar.Fatalw("writing prover parameters failed", "path", *paramsPath, "err", err)
	}
	sugar.Infow("wrote prover parameters", "path", *paramsPath)

	f, err := os.Create(*vkPath)
	if err != nil {
		sugar.Fatalw("creating verifying-key file failed", "path", *vkPath, "err", err)
	}
	if _, err := g.WriteVerifyingKey(f); err != nil {
		f.Close()
		sugar.Fatalw("writing verifying key failed", "path", *vkPath, "err", err)
	}
	if err := f.Close(); err != nil {
		sugar.Fatalw("closing verifying-key file failed", "path", *vkPath, "err", err)
	}
	sugar.Infow("wrote verifying key", "path", *vkPath)
}

// Copyright 2024 Taekion Corporation
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/taekion-org/tfslite-go/client"
	"github.com/taekion-org/tfslite-go/crypto"
	"github.com/taekion-org/tfslite-go/store/badgerstore"
	"github.com/taekion-org/tfslite-go/upload"
)

func main() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	var (
		flagURL     string
		flagKeyFile string
		flagFile    string
		flagDBPath  string
		flagLog     string
	)

	pflag.StringVarP(&flagURL, "url", "u", "http://127.0.0.1:8080", "base URL of the tfslite service")
	pflag.StringVarP(&flagKeyFile, "key", "k", "", "path to a file containing a hex-encoded secp256k1 private key")
	pflag.StringVarP(&flagFile, "file", "f", "", "path to the file to upload")
	pflag.StringVarP(&flagDBPath, "db", "d", "/tmp/tfslite-client-db", "path to the local staging database directory")
	pflag.StringVarP(&flagLog, "log", "l", "info", "log output level")

	pflag.Parse()

	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.DebugLevel)
	level, err := zerolog.ParseLevel(flagLog)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid log level")
	}
	log = log.Level(level)

	if flagKeyFile == "" || flagFile == "" {
		log.Fatal().Msg("both --key and --file are required")
	}

	keyHex, err := os.ReadFile(flagKeyFile)
	if err != nil {
		log.Fatal().Err(err).Msg("could not read key file")
	}
	signer, err := crypto.LoadPrivateKeyFromHex(strings.TrimSpace(string(keyHex)))
	if err != nil {
		log.Fatal().Err(err).Msg("could not parse private key")
	}

	localStore, err := badgerstore.Open(flagDBPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("could not open local state store")
	}
	defer localStore.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-sig
		log.Warn().Msg("received interrupt, cancelling upload")
		cancel()
	}()

	c := client.New(flagURL, log)

	batcherKey, err := c.GetBatcherPublicKey(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("could not fetch batcher public key")
	}

	up := upload.New(flagFile, localStore, c, signer, batcherKey, log)

	log.Info().Str("file", flagFile).Str("file_id", up.FileID().String()).Msg("preparing upload")
	err = up.Prepare(ctx, func(processed, total uint64) {
		log.Info().Uint64("processed", processed).Uint64("total", total).Msg("prepare progress")
	})
	if err != nil {
		log.Fatal().Err(err).Msg("could not prepare upload")
	}

	log.Info().Msg("sending transactions")
	err = up.Send(ctx, func(processed, total uint64) {
		log.Info().Uint64("processed", processed).Uint64("total", total).Msg("send progress")
	})
	if err != nil {
		log.Fatal().Err(err).Msg("could not send transactions")
	}

	log.Info().Msg("waiting for commitment")
	err = up.Wait(ctx, func(processed, total uint64) {
		log.Info().Uint64("processed", processed).Uint64("total", total).Msg("wait progress")
	})
	if err != nil {
		log.Fatal().Err(err).Msg("could not wait for commitment")
	}

	log.Info().Str("file_id", up.FileID().String()).Msg("upload complete")
}

package main

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"embed"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creditpath/captchad"
	"github.com/creditpath/captchad/data"
	"github.com/creditpath/captchad/internal"
	libcaptchad "github.com/creditpath/captchad/lib"
	"github.com/creditpath/captchad/lib/config"
	"github.com/creditpath/captchad/lib/passtoken"
	"github.com/creditpath/captchad/lib/ratelimit"
	"github.com/creditpath/captchad/lib/sweeper"
	"github.com/facebookgo/flagenv"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	basePrefix               = flag.String("base-prefix", "", "base prefix (root URL) the API is served under e.g. /captcha")
	bind                     = flag.String("bind", ":3000", "network address to bind HTTP to")
	bindNetwork              = flag.String("bind-network", "tcp", "network family to bind HTTP to, e.g. unix, tcp")
	configFname              = flag.String("config", "", "full path to the captchad configuration file (defaults to a sensible built-in configuration)")
	dumpConfig               = flag.Bool("dump-config", false, "print the effective configuration as YAML and exit")
	hs512Secret              = flag.String("hs512-secret", "", "secret used to sign pass tokens, uses ed25519 if not set")
	ed25519PrivateKeyHex     = flag.String("ed25519-private-key-hex", "", "private key used to sign pass tokens, if not set a random one will be assigned")
	ed25519PrivateKeyHexFile = flag.String("ed25519-private-key-hex-file", "", "file name containing value for ed25519-private-key-hex")
	metricsBind              = flag.String("metrics-bind", ":9090", "network address to bind metrics to, set to an empty string to disable metrics")
	metricsBindNetwork       = flag.String("metrics-bind-network", "tcp", "network family for the metrics server to bind to")
	socketMode               = flag.String("socket-mode", "0770", "socket mode (permissions) for unix domain sockets.")
	slogLevel                = flag.String("slog-level", "INFO", "logging level (see https://pkg.go.dev/log/slog#hdr-Levels)")
	healthcheck              = flag.Bool("healthcheck", false, "run a health check against a running captchad")
	extractResources         = flag.String("extract-resources", "", "if set, extract the built-in configuration files to the specified folder")
	versionFlag              = flag.Bool("version", false, "print captchad version")
)

func keyFromHex(value string) (ed25519.PrivateKey, error) {
	keyBytes, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("supplied key is not hex-encoded: %w", err)
	}

	if len(keyBytes) != ed25519.SeedSize {
		return nil, fmt.Errorf("supplied key is not %d bytes long, got %d bytes", ed25519.SeedSize, len(keyBytes))
	}

	return ed25519.NewKeyFromSeed(keyBytes), nil
}

func doHealthCheck() error {
	network, address := *bindNetwork, *bind
	if network == "" {
		network, address = parseBindNetFromAddr(address)
	}

	cli := &http.Client{Timeout: 5 * time.Second}
	target := "http://localhost" + address + *basePrefix + "/health"

	if network == "unix" {
		cli.Transport = &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", address)
			},
		}
		target = "http://unix" + *basePrefix + "/health"
	} else if !strings.HasPrefix(address, ":") {
		target = "http://" + address + *basePrefix + "/health"
	}

	resp, err := cli.Get(target)
	if err != nil {
		return fmt.Errorf("failed to fetch health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status code: %d: %s", resp.StatusCode, body)
	}

	return nil
}

// parseBindNetFromAddr determine bind network and address based on the given network and address.
func parseBindNetFromAddr(address string) (string, string) {
	defaultScheme := "http://"
	if !strings.Contains(address, "://") {
		if strings.HasPrefix(address, ":") {
			address = defaultScheme + "localhost" + address
		} else {
			address = defaultScheme + address
		}
	}

	bindUri, err := url.Parse(address)
	if err != nil {
		log.Fatal(fmt.Errorf("failed to parse bind URL: %w", err))
	}

	switch bindUri.Scheme {
	case "unix":
		return "unix", bindUri.Path
	case "tcp", "http", "https":
		return "tcp", bindUri.Host
	default:
		log.Fatal(fmt.Errorf("unsupported network scheme %s in address %s", bindUri.Scheme, address))
	}
	return "", address
}

func setupListener(network string, address string) (net.Listener, string) {
	formattedAddress := ""

	if network == "" {
		network, address = parseBindNetFromAddr(address)
	}

	switch network {
	case "unix":
		formattedAddress = "unix:" + address
	case "tcp":
		if strings.HasPrefix(address, ":") { // assume it's just a port e.g. :3000
			formattedAddress = "http://localhost" + address
		} else {
			formattedAddress = "http://" + address
		}
	default:
		formattedAddress = fmt.Sprintf(`(%s) %s`, network, address)
	}

	listener, err := net.Listen(network, address)
	if err != nil {
		log.Fatal(fmt.Errorf("failed to bind to %s: %w", formattedAddress, err))
	}

	if network == "unix" {
		mode, err := strconv.ParseUint(*socketMode, 8, 0)
		if err != nil {
			listener.Close()
			log.Fatal(fmt.Errorf("could not parse socket mode %s: %w", *socketMode, err))
		}

		if err := os.Chmod(address, os.FileMode(mode)); err != nil {
			if err := listener.Close(); err != nil {
				log.Printf("failed to close listener: %v", err)
			}
			log.Fatal(fmt.Errorf("could not change socket mode: %w", err))
		}
	}

	return listener, formattedAddress
}

func signingKeys() (ed25519.PrivateKey, []byte) {
	switch {
	case *hs512Secret != "" && (*ed25519PrivateKeyHex != "" || *ed25519PrivateKeyHexFile != ""):
		log.Fatal("do not specify both HS512 and ED25519 secrets")
	case *hs512Secret != "":
		return nil, []byte(*hs512Secret)
	case *ed25519PrivateKeyHex != "" && *ed25519PrivateKeyHexFile != "":
		log.Fatal("do not specify both ED25519_PRIVATE_KEY_HEX and ED25519_PRIVATE_KEY_HEX_FILE")
	case *ed25519PrivateKeyHex != "":
		priv, err := keyFromHex(*ed25519PrivateKeyHex)
		if err != nil {
			log.Fatalf("failed to parse and validate ED25519_PRIVATE_KEY_HEX: %v", err)
		}
		return priv, nil
	case *ed25519PrivateKeyHexFile != "":
		hexFile, err := os.ReadFile(*ed25519PrivateKeyHexFile)
		if err != nil {
			log.Fatalf("failed to read ED25519_PRIVATE_KEY_HEX_FILE %s: %v", *ed25519PrivateKeyHexFile, err)
		}

		priv, err := keyFromHex(string(bytes.TrimSpace(hexFile)))
		if err != nil {
			log.Fatalf("failed to parse and validate content of ED25519_PRIVATE_KEY_HEX_FILE: %v", err)
		}
		return priv, nil
	}

	slog.Warn("generating random key, pass tokens minted by one captchad instance can't be redeemed by another")
	return nil, nil
}

func main() {
	flagenv.Parse()
	flag.Parse()

	if *versionFlag {
		fmt.Println("captchad", captchad.Version)
		return
	}

	internal.InitSlog(*slogLevel)

	if *healthcheck {
		if err := doHealthCheck(); err != nil {
			log.Fatal(err)
		}
		return
	}

	if *extractResources != "" {
		if err := extractEmbedFS(data.Configs, ".", *extractResources); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Extracted embedded configuration files to %s\n", *extractResources)
		return
	}

	cfg, err := config.LoadOrDefault(*configFname)
	if err != nil {
		log.Fatalf("can't load configuration: %v", err)
	}

	if *dumpConfig {
		out, err := cfg.Dump()
		if err != nil {
			log.Fatalf("can't dump configuration: %v", err)
		}
		os.Stdout.Write(out)
		return
	}

	if *basePrefix != "" && !strings.HasPrefix(*basePrefix, "/") {
		log.Fatalf("[misconfiguration] base-prefix must start with a slash, eg: /%s", *basePrefix)
	} else if strings.HasSuffix(*basePrefix, "/") {
		log.Fatalf("[misconfiguration] base-prefix must not end with a slash")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := cfg.Store.Build(ctx)
	if err != nil {
		log.Fatalf("can't open %s store: %v", cfg.Store.Backend, err)
	}
	if c, ok := st.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				slog.Error("can't close store", "backend", cfg.Store.Backend, "err", err)
			}
		}()
	}

	gen, err := cfg.Challenge.Build()
	if err != nil {
		log.Fatalf("can't build %s challenge generator: %v", cfg.Challenge.Generator, err)
	}

	opts := libcaptchad.Options{
		Store:          st,
		Generator:      gen,
		GeneratorName:  cfg.Challenge.Generator,
		TTL:            cfg.Challenge.TTLOrDefault(captchad.DefaultTTL),
		BasePrefix:     *basePrefix,
		CORS:           cfg.CORS,
		ExposeSessions: cfg.Stats.ExposeSessions,
	}

	if cfg.PassTokens.Enabled {
		priv, secret := signingKeys()
		opts.PassTokens, err = passtoken.New(passtoken.Options{
			Store:             st,
			ED25519PrivateKey: priv,
			HS512Secret:       secret,
			Expiration:        time.Duration(cfg.PassTokens.Expiration),
		})
		if err != nil {
			log.Fatalf("can't set up pass tokens: %v", err)
		}
	}

	sweepers := []*sweeper.Sweeper{
		sweeper.New(cfg.Store.Backend, st, time.Duration(cfg.SweepInterval)),
	}

	if cfg.RateLimit.Enabled {
		opts.Limiter, err = ratelimit.New(cfg.RateLimit.Limiter())
		if err != nil {
			log.Fatalf("can't set up rate limiting: %v", err)
		}
		sweepers = append(sweepers, sweeper.New("ratelimit", opts.Limiter, time.Duration(cfg.SweepInterval)))
	}

	s, err := libcaptchad.New(opts)
	if err != nil {
		log.Fatalf("can't construct libcaptchad.Server: %v", err)
	}

	for _, sw := range sweepers {
		sw.Start(ctx)
		defer sw.Stop()
	}

	wg := new(sync.WaitGroup)

	if *metricsBind != "" {
		wg.Add(1)
		go metricsServer(ctx, wg.Done)
	}

	srv := http.Server{Handler: s, ErrorLog: internal.GetFilteredHTTPLogger()}
	listener, listenerUrl := setupListener(*bindNetwork, *bind)
	slog.Info(
		"listening",
		"url", listenerUrl,
		"version", captchad.Version,
		"base-prefix", *basePrefix,
		"store", cfg.Store.Backend,
		"generator", cfg.Challenge.Generator,
		"ttl", opts.TTL,
		"sweep-interval", time.Duration(cfg.SweepInterval),
		"pass-tokens", cfg.PassTokens.Enabled,
		"rate-limit", cfg.RateLimit.Enabled,
	)

	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(c); err != nil {
			log.Printf("cannot shut down: %v", err)
		}
	}()

	if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	wg.Wait()
}

func metricsServer(ctx context.Context, done func()) {
	defer done()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := http.Server{Handler: mux, ErrorLog: internal.GetFilteredHTTPLogger()}
	listener, metricsUrl := setupListener(*metricsBindNetwork, *metricsBind)
	slog.Debug("listening for metrics", "url", metricsUrl)

	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(c); err != nil {
			log.Printf("cannot shut down: %v", err)
		}
	}()

	if err := srv.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

func extractEmbedFS(fsys embed.FS, root string, destDir string) error {
	return fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		destPath := filepath.Join(destDir, relPath)

		if d.IsDir() {
			return os.MkdirAll(destPath, 0o700)
		}

		embeddedData, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}

		return os.WriteFile(destPath, embeddedData, 0o644)
	})
}

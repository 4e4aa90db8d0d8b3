// Package config loads relayer configuration from environment variables
// (and a small set of CLI flag overrides), the way the teacher's
// relayer/config package loads its JSON configuration — here via viper's
// environment-first layering instead of a JSON file, since spec.md §6
// specifies an environment-variable surface.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrConfigFatal wraps any configuration error that must abort startup
// with exit code 1, per spec.md §6 "Exit codes".
var ErrConfigFatal = errors.New("fatal configuration error")

// Config is the fully resolved, process-wide configuration produced by
// Load. It is immutable after Load returns.
type Config struct {
	// RelayerPrivateKeyHex is empty when a KMS signer is configured
	// instead (RelayerKeyKMSARN non-empty).
	RelayerPrivateKeyHex string
	RelayerKeyKMSARN     string
	AWSRegion            string

	Port             int
	AutoStartListener bool
	LogLevel         string

	AttestationBaseURL    string
	AttestationPollInterval time.Duration
	MaxPollRetries        int
	DispatchTimeout       time.Duration

	RedisURL       string
	MetricsEnabled bool

	Chains []ChainConfig
}

const (
	defaultPort                    = 3001
	defaultAttestationPollInterval = 15 * time.Second
	defaultMaxPollRetries          = 60
	defaultDispatchTimeout         = 180 * time.Second
	defaultConfirmations           = 0
	defaultChainPollInterval       = 15 * time.Second
	defaultMaxLookback             = 2000
	defaultChunkSize               = 2000
)

// Load resolves a Config from the process environment, applying any
// flags found in args as overrides. args is typically os.Args[1:].
func Load(args []string) (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("CCTP_PORT", defaultPort)
	v.SetDefault("AUTO_START_LISTENER", true)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ATTESTATION_POLL_INTERVAL", defaultAttestationPollInterval.String())
	v.SetDefault("MAX_POLL_RETRIES", defaultMaxPollRetries)
	v.SetDefault("DISPATCH_TIMEOUT", defaultDispatchTimeout.String())
	v.SetDefault("METRICS_ENABLED", true)

	flags := pflag.NewFlagSet("relayer", pflag.ContinueOnError)
	port := flags.Int("port", 0, "override CCTP_PORT")
	chainsFlag := flags.String("chains", "", "override CHAINS")
	if err := flags.Parse(args); err != nil {
		return nil, errors.Wrap(ErrConfigFatal, err.Error())
	}
	if err := v.BindPFlag("CCTP_PORT", flags.Lookup("port")); err != nil {
		return nil, errors.Wrap(ErrConfigFatal, err.Error())
	}
	if err := v.BindPFlag("CHAINS", flags.Lookup("chains")); err != nil {
		return nil, errors.Wrap(ErrConfigFatal, err.Error())
	}
	_ = port
	_ = chainsFlag

	cfg := &Config{
		RelayerPrivateKeyHex:    v.GetString("RELAYER_PRIVATE_KEY"),
		RelayerKeyKMSARN:        v.GetString("RELAYER_KEY_KMS_ARN"),
		AWSRegion:               v.GetString("AWS_REGION"),
		Port:                    v.GetInt("CCTP_PORT"),
		AutoStartListener:       v.GetBool("AUTO_START_LISTENER"),
		LogLevel:                v.GetString("LOG_LEVEL"),
		AttestationBaseURL:      v.GetString("ATTESTATION_BASE_URL"),
		MaxPollRetries:          v.GetInt("MAX_POLL_RETRIES"),
		RedisURL:                v.GetString("REDIS_URL"),
		MetricsEnabled:          v.GetBool("METRICS_ENABLED"),
	}

	pollInterval, err := time.ParseDuration(v.GetString("ATTESTATION_POLL_INTERVAL"))
	if err != nil {
		return nil, errors.Wrapf(ErrConfigFatal, "ATTESTATION_POLL_INTERVAL: %s", err)
	}
	cfg.AttestationPollInterval = pollInterval

	dispatchTimeout, err := time.ParseDuration(v.GetString("DISPATCH_TIMEOUT"))
	if err != nil {
		return nil, errors.Wrapf(ErrConfigFatal, "DISPATCH_TIMEOUT: %s", err)
	}
	cfg.DispatchTimeout = dispatchTimeout

	if cfg.RelayerPrivateKeyHex == "" && cfg.RelayerKeyKMSARN == "" {
		return nil, errors.Wrap(ErrConfigFatal, "RELAYER_PRIVATE_KEY or RELAYER_KEY_KMS_ARN is required")
	}

	chainNames := splitAndTrim(v.GetString("CHAINS"))
	if len(chainNames) == 0 {
		return nil, errors.Wrap(ErrConfigFatal, "CHAINS must list at least one chain key")
	}

	seenDomains := make(map[uint32]string, len(chainNames))
	for _, name := range chainNames {
		chain, err := loadChain(v, name)
		if err != nil {
			return nil, errors.Wrapf(ErrConfigFatal, "chain %s: %s", name, err)
		}
		if existing, ok := seenDomains[chain.DomainID]; ok {
			return nil, errors.Wrapf(ErrConfigFatal, "duplicate domain_id %d (chains %s, %s)", chain.DomainID, existing, name)
		}
		seenDomains[chain.DomainID] = name
		cfg.Chains = append(cfg.Chains, chain)
	}

	return cfg, nil
}

func loadChain(v *viper.Viper, name string) (ChainConfig, error) {
	prefix := strings.ToUpper(name) + "_"

	rpcURL := v.GetString(prefix + "RPC_URL")
	if rpcURL == "" {
		return ChainConfig{}, errors.Errorf("%sRPC_URL is required", prefix)
	}

	chainIDRaw := v.GetString(prefix + "CHAIN_ID")
	chainID, err := strconv.ParseUint(chainIDRaw, 10, 64)
	if err != nil {
		return ChainConfig{}, errors.Wrapf(err, "%sCHAIN_ID", prefix)
	}

	domainIDRaw := v.GetString(prefix + "DOMAIN_ID")
	domainID, err := strconv.ParseUint(domainIDRaw, 10, 32)
	if err != nil {
		return ChainConfig{}, errors.Wrapf(err, "%sDOMAIN_ID", prefix)
	}

	v.SetDefault(prefix+"EVENT_FILTERING_SUPPORTED", true)
	v.SetDefault(prefix+"CONFIRMATIONS", defaultConfirmations)
	v.SetDefault(prefix+"POLL_INTERVAL", defaultChainPollInterval.String())
	v.SetDefault(prefix+"MAX_LOOKBACK", defaultMaxLookback)
	v.SetDefault(prefix+"CHUNK_SIZE", defaultChunkSize)

	pollInterval, err := time.ParseDuration(v.GetString(prefix + "POLL_INTERVAL"))
	if err != nil {
		return ChainConfig{}, errors.Wrapf(err, "%sPOLL_INTERVAL", prefix)
	}

	bridgeAddr := common.Address{}
	if raw := v.GetString(prefix + "BRIDGE_ADDRESS"); raw != "" {
		if !common.IsHexAddress(raw) {
			return ChainConfig{}, errors.Errorf("%sBRIDGE_ADDRESS is not a valid address: %s", prefix, raw)
		}
		bridgeAddr = common.HexToAddress(raw)
	}

	transmitterRaw := v.GetString(prefix + "MESSAGE_TRANSMITTER_ADDRESS")
	transmitterAddr := common.Address{}
	if transmitterRaw != "" {
		if !common.IsHexAddress(transmitterRaw) {
			return ChainConfig{}, errors.Errorf("%sMESSAGE_TRANSMITTER_ADDRESS is not a valid address: %s", prefix, transmitterRaw)
		}
		transmitterAddr = common.HexToAddress(transmitterRaw)
	}

	return ChainConfig{
		ChainID:                   chainID,
		Name:                      name,
		DomainID:                  uint32(domainID),
		RPCURL:                    rpcURL,
		BridgeAddress:             bridgeAddr,
		MessageTransmitterAddress: transmitterAddr,
		EventFilteringSupported:   v.GetBool(prefix + "EVENT_FILTERING_SUPPORTED"),
		Confirmations:             v.GetUint64(prefix + "CONFIRMATIONS"),
		PollInterval:              pollInterval,
		MaxLookback:               v.GetUint64(prefix + "MAX_LOOKBACK"),
		ChunkSize:                 v.GetUint64(prefix + "CHUNK_SIZE"),
	}, nil
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LookupByDomain returns the ChainConfig for the given domain, used by
// the Correlator (spec.md §4.3 step 4) to resolve destination chains.
func (c *Config) LookupByDomain(domain uint32) (ChainConfig, bool) {
	for _, chain := range c.Chains {
		if chain.DomainID == domain {
			return chain, true
		}
	}
	return ChainConfig{}, false
}

func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "port=%d chains=%d", c.Port, len(c.Chains))
	return b.String()
}

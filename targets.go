// targets.go: static compile-target, trust-level and chain tables.
//
// Everything in this file is built once at init and never mutated, so the
// tables are safe to read from any goroutine without locking. The parser
// consults them when it sees @compile_target / @trust / @chain attributes and
// the runtime consults them again before executing a targeted service.

package serval

import "strings"

// CompileTarget names a deployment environment a service can be compiled for.
type CompileTarget int

const (
	TargetNative CompileTarget = iota
	TargetBlockchain
	TargetWebAssembly
	TargetMobile
	TargetEdge
)

func (t CompileTarget) String() string {
	switch t {
	case TargetNative:
		return "native"
	case TargetBlockchain:
		return "blockchain"
	case TargetWebAssembly:
		return "webassembly"
	case TargetMobile:
		return "mobile"
	case TargetEdge:
		return "edge"
	default:
		return "unknown"
	}
}

// CompileTargetFromString resolves a user-supplied target name. "wasm" is an
// accepted alias for "webassembly". Matching is case-insensitive.
func CompileTargetFromString(s string) (CompileTarget, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "native":
		return TargetNative, true
	case "blockchain":
		return TargetBlockchain, true
	case "wasm", "webassembly":
		return TargetWebAssembly, true
	case "mobile":
		return TargetMobile, true
	case "edge":
		return TargetEdge, true
	default:
		return 0, false
	}
}

// TargetConstraint is the rule set for one compile target. Operations are
// capability names in "namespace::function" form; attributes carry their
// leading '@'.
type TargetConstraint struct {
	Target              CompileTarget
	AllowedOperations   []string
	ForbiddenOperations []string
	RequiredAttributes  []string
}

// RequiresAttribute reports whether name (with leading '@') is mandatory for
// this target.
func (c TargetConstraint) RequiresAttribute(name string) bool {
	for _, a := range c.RequiredAttributes {
		if a == name {
			return true
		}
	}
	return false
}

// ForbiddenNamespaces extracts the namespace half of every forbidden
// operation ("web::http_request" -> "web").
func (c TargetConstraint) ForbiddenNamespaces() map[string]bool {
	out := make(map[string]bool, len(c.ForbiddenOperations))
	for _, op := range c.ForbiddenOperations {
		if i := strings.Index(op, "::"); i > 0 {
			out[op[:i]] = true
		}
	}
	return out
}

var targetConstraints = map[CompileTarget]TargetConstraint{
	TargetBlockchain: {
		Target: TargetBlockchain,
		AllowedOperations: []string{
			"chain::transaction", "chain::deploy", "chain::call",
			"oracle::fetch", "crypto::sign", "crypto::verify",
			"auth::verify", "log::info",
		},
		ForbiddenOperations: []string{
			"web::http_request", "web::websocket", "desktop::window",
			"mobile::notification", "iot::sensor_read",
		},
		RequiredAttributes: []string{"@secure", "@trust"},
	},
	TargetWebAssembly: {
		Target: TargetWebAssembly,
		AllowedOperations: []string{
			"web::dom_manipulation", "web::local_storage", "web::fetch",
			"web::websocket", "web::event_listener", "web::element_create",
		},
		ForbiddenOperations: []string{
			"chain::transaction", "chain::deploy", "desktop::file_system",
			"mobile::camera", "iot::device_control",
		},
		RequiredAttributes: []string{"@web"},
	},
	TargetNative: {
		Target: TargetNative,
		AllowedOperations: []string{
			"system::file_io", "system::process", "system::network",
			"desktop::window", "desktop::menu", "database::query",
		},
		ForbiddenOperations: []string{
			"chain::transaction", "mobile::touch_event", "iot::sensor_read",
		},
		RequiredAttributes: []string{"@native"},
	},
	TargetMobile: {
		Target: TargetMobile,
		AllowedOperations: []string{
			"mobile::notification", "mobile::camera", "mobile::location",
			"mobile::touch_event", "mobile::vibration", "mobile::storage",
		},
		ForbiddenOperations: []string{
			"chain::transaction", "desktop::window", "iot::device_control",
		},
		RequiredAttributes: []string{"@mobile"},
	},
	TargetEdge: {
		Target: TargetEdge,
		AllowedOperations: []string{
			"iot::sensor_read", "iot::device_control", "iot::data_process",
			"iot::network_send", "iot::local_storage",
		},
		ForbiddenOperations: []string{
			"chain::transaction", "web::dom_manipulation", "desktop::window",
			"mobile::camera",
		},
		RequiredAttributes: []string{"@edge"},
	},
}

// TargetConstraints returns the constraint row for a target. The zero-value
// constraint (no requirements) is returned for targets without a row.
func TargetConstraints(t CompileTarget) TargetConstraint {
	if c, ok := targetConstraints[t]; ok {
		return c
	}
	return TargetConstraint{Target: t}
}

// TrustLevel classifies how much external trust a service model assumes.
type TrustLevel int

const (
	TrustDecentralized TrustLevel = iota
	TrustHybrid
	TrustCentralized
)

func (l TrustLevel) String() string {
	switch l {
	case TrustDecentralized:
		return "decentralized"
	case TrustHybrid:
		return "hybrid"
	case TrustCentralized:
		return "centralized"
	default:
		return "unknown"
	}
}

// SecurityProfile pins the API surface and audit duty for one trust level.
type SecurityProfile struct {
	Level             TrustLevel
	AllowedAPIs       []string
	ForbiddenAPIs     []string
	RequiredChecks    []string
	AuditRequirements []string
}

var trustProfiles = map[TrustLevel]SecurityProfile{
	TrustDecentralized: {
		Level:       TrustDecentralized,
		AllowedAPIs: []string{"oracle::fetch", "chain::cross_chain"},
		ForbiddenAPIs: []string{
			"web::http_request", "service::external_api", "database::external",
		},
		RequiredChecks: []string{
			"crypto::verify_signature", "auth::verify_identity", "audit::log_operation",
		},
		AuditRequirements: []string{
			"all_operations_logged", "signature_verification", "immutable_audit_trail",
		},
	},
	TrustHybrid: {
		Level: TrustHybrid,
		AllowedAPIs: []string{
			"oracle::fetch", "service::external_api", "web::http_request",
		},
		ForbiddenAPIs: []string{"database::external", "system::file_access"},
		RequiredChecks: []string{
			"auth::verify_identity", "crypto::encrypt_data", "audit::log_operation",
		},
		AuditRequirements: []string{
			"external_calls_logged", "data_encryption", "identity_verification",
		},
	},
	TrustCentralized: {
		Level: TrustCentralized,
		AllowedAPIs: []string{
			"service::external_api", "web::http_request",
			"database::external", "system::file_access",
		},
		ForbiddenAPIs:     []string{"chain::transaction", "oracle::fetch"},
		RequiredChecks:    []string{"auth::verify_identity"},
		AuditRequirements: []string{"access_logged"},
	},
}

// TrustProfile returns the security profile for a trust level.
func TrustProfile(l TrustLevel) (SecurityProfile, bool) {
	p, ok := trustProfiles[l]
	return p, ok
}

// validTrustModels are the spellings accepted by @trust("...").
var validTrustModels = []string{"hybrid", "centralized", "decentralized", "trustless"}

// validChainNames are the spellings accepted by @chain("...").
var validChainNames = []string{
	"ethereum", "polygon", "bsc", "solana", "bitcoin", "avalanche",
	"arbitrum", "optimism", "base", "near", "eth",
}

// ChainConfig describes one supported ledger network.
type ChainConfig struct {
	Name          string
	ChainID       int64
	NativeToken   string
	GasLimit      int64
	GasPriceGwei  int64
	Confirmations int
}

var chainConfigs = map[string]ChainConfig{
	"ethereum":  {Name: "ethereum", ChainID: 1, NativeToken: "ETH", GasLimit: 21000, GasPriceGwei: 20, Confirmations: 12},
	"polygon":   {Name: "polygon", ChainID: 137, NativeToken: "MATIC", GasLimit: 21000, GasPriceGwei: 30, Confirmations: 64},
	"solana":    {Name: "solana", ChainID: 101, NativeToken: "SOL", GasLimit: 5000, GasPriceGwei: 5000, Confirmations: 32},
	"bsc":       {Name: "bsc", ChainID: 56, NativeToken: "BNB", GasLimit: 21000, GasPriceGwei: 5, Confirmations: 15},
	"avalanche": {Name: "avalanche", ChainID: 43114, NativeToken: "AVAX", GasLimit: 21000, GasPriceGwei: 25, Confirmations: 1},
	"arbitrum":  {Name: "arbitrum", ChainID: 42161, NativeToken: "ETH", GasLimit: 21000, GasPriceGwei: 1, Confirmations: 1},
	"optimism":  {Name: "optimism", ChainID: 10, NativeToken: "ETH", GasLimit: 21000, GasPriceGwei: 1, Confirmations: 1},
}

// ChainConfigFor looks up a chain by its @chain spelling ("eth" aliases
// "ethereum").
func ChainConfigFor(name string) (ChainConfig, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "eth" {
		n = "ethereum"
	}
	c, ok := chainConfigs[n]
	return c, ok
}

package config

import "time"

// AgentConfig holds the runtime configuration of the local sync agent.  The
// agent runs entirely from environment variables too, but unlike the server
// almost everything has a sensible default: a fresh machine with zero
// configuration still gets a working offline data directory.
type AgentConfig struct {
	DataDir         string        // directory for the durable store
	LegacyDir       string        // directory scanned for pre-store JSON exports
	RemoteURL       string        // base URL of the sync backend (empty = offline only)
	RemoteToken     string        // bearer access token for the backend
	ActiveOrgID     string        // preselected tenant, overrides the stored one
	SyncDebounce    time.Duration // quiet period before a queued change is pushed
	MaxLocalBackups int           // size of the local snapshot ring
	ReadVerify      bool          // re-read state after every write and compare
}

// LoadAgent reads the agent configuration.  Only DATA_DIR is required; the
// remote settings stay empty when the agent should run purely offline.
func LoadAgent() AgentConfig {
	return AgentConfig{
		DataDir:         must("DATA_DIR"),
		LegacyDir:       envStr("LEGACY_DIR", ""),
		RemoteURL:       envStr("REMOTE_URL", ""),
		RemoteToken:     envStr("REMOTE_TOKEN", ""),
		ActiveOrgID:     envStr("ACTIVE_ORG_ID", ""),
		SyncDebounce:    time.Duration(envInt("SYNC_DEBOUNCE_MS", 1200)) * time.Millisecond,
		MaxLocalBackups: envInt("MAX_LOCAL_BACKUPS", 10),
		ReadVerify:      envBool("READ_VERIFY", false),
	}
}

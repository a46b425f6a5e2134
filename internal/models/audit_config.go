package models

// AuditConfig controls the audit logger sinks. SanitizeSQL and
// IncludeUserContext affect verbosity only; credential masking for the file
// sink is unconditional and cannot be disabled.
type AuditConfig struct {
	BufferSize         int    `yaml:"buffer_size,omitempty" json:"buffer_size,omitzero"`
	Directory          string `yaml:"directory,omitempty" json:"directory,omitzero"`
	MaxFileSizeMB      int    `yaml:"max_file_size_mb,omitempty" json:"max_file_size_mb,omitzero"`
	MaxBackups         int    `yaml:"max_backups,omitempty" json:"max_backups,omitzero"`
	SanitizeSQL        *bool  `yaml:"sanitize_sql,omitempty" json:"sanitize_sql,omitempty"`
	IncludeUserContext bool   `yaml:"include_user_context,omitempty" json:"include_user_context,omitzero"`
}

// Defaults for AuditConfig.
const (
	DefaultAuditBufferSize = 1000
	DefaultAuditMaxSizeMB  = 10
	DefaultAuditBackups    = 5
)

// ApplyDefaults fills unset audit fields in place.
func (a *AuditConfig) ApplyDefaults() {
	if a.BufferSize <= 0 {
		a.BufferSize = DefaultAuditBufferSize
	}
	if a.MaxFileSizeMB <= 0 {
		a.MaxFileSizeMB = DefaultAuditMaxSizeMB
	}
	if a.MaxBackups <= 0 {
		a.MaxBackups = DefaultAuditBackups
	}
}

// SanitizeEnabled reports whether verbose SQL sanitization is on. Defaults to
// true when unset.
func (a *AuditConfig) SanitizeEnabled() bool {
	return a.SanitizeSQL == nil || *a.SanitizeSQL
}

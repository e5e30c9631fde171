package contracts

// PluginInfo describes one engine-side formatting plugin as reported by
// `dprint editor-info`.
type PluginInfo struct {
	Name            string   `json:"name"`
	Version         string   `json:"version"`
	ConfigKey       string   `json:"configKey"`
	FileExtensions  []string `json:"fileExtensions"`
	FileNames       []string `json:"fileNames"`
	HelpURL         string   `json:"helpUrl"`
	ConfigSchemaURL string   `json:"configSchemaUrl"`
}

// EditorInfo is the JSON document printed by `dprint editor-info`.
type EditorInfo struct {
	SchemaVersion   int          `json:"schemaVersion"`
	CLIVersion      string       `json:"cliVersion"`
	ConfigSchemaURL string       `json:"configSchemaUrl"`
	Plugins         []PluginInfo `json:"plugins"`
}

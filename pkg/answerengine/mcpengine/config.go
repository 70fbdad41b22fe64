package mcpengine

// Config describes the MCP server hosting the answer tool.
type Config struct {
	// Name identifies the server in logs.
	Name string

	// Transport is "streamable-http" (default) or "sse".
	Transport string

	URL string

	// Tool is the tool to call. Defaults to "answer".
	Tool string

	// Headers are added to every request.
	Headers map[string]string

	Auth AuthConfig
}

// AuthConfig selects how the engine authenticates to the MCP server.
type AuthConfig struct {
	// Type is "" (none) or "oauth_client_credentials".
	Type         string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

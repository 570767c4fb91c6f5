// Package defaults embeds the example configuration written by
// todochat init.
package defaults

import _ "embed"

//go:embed config.example.yaml
var ConfigYAML []byte

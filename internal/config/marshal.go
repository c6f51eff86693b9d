// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package config

import "encoding/json"

func marshalIndent(cfg Config) ([]byte, error) {
	return json.MarshalIndent(cfg, "", "  ")
}

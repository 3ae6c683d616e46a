// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validate checks instance against ConfigSchema, returning a
// descriptive error rather than the library's raw validation failure
// when the document fails to parse.
func Validate(instance json.RawMessage) error {
	sch, err := jsonschema.CompileString("config.schema.json", ConfigSchema)
	if err != nil {
		return fmt.Errorf("config: schema did not compile: %w", err)
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		return fmt.Errorf("config: invalid JSON: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/quarrydata/quarry/pkg/types"
)

// PreflightTimeout bounds CheckProvider.
const PreflightTimeout = 15 * time.Second

// CheckProvider sends a one-word prompt to make sure the provider is
// reachable and the credentials work before the server accepts requests.
func CheckProvider(ctx context.Context, provider types.LLMProvider) error {
	ctx, cancel := context.WithTimeout(ctx, PreflightTimeout)
	defer cancel()

	_, err := provider.Chat(ctx, []types.Message{types.UserMessage("ping")}, nil)
	if err != nil {
		return fmt.Errorf("LLM provider preflight check failed (%s/%s): %w", provider.Name(), provider.Model(), err)
	}
	return nil
}

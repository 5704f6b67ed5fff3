/*
 * Copyright 2026 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package fleet

import "errors"

var (
	ErrAlreadyConnected   = errors.New("robot already connected")
	ErrNotConnected       = errors.New("robot not connected")
	ErrConnectionFailed   = errors.New("connection failed after retries")
	ErrInvalidAddress     = errors.New("invalid device address")
	ErrInvalidPort        = errors.New("invalid device port")
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrCommandFailed      = errors.New("command failed")
	ErrCommandTimeout     = errors.New("command timed out")
)

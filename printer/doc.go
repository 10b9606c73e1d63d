/*
 * Copyright 2025 SREDiag Authors
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

// Package printer runs the print spooler simulation on top of the shared
// queue: producers issue print requests, consumers remove and "print" them,
// and a coordinator owns the shared resources for the length of a run.
//
// A run is normally started as
//
//	printq coordinator
//
// which re-executes the same binary once per worker. Every process logs
// through zap with its role and pid attached.
package printer

// Copyright 2025 The Pqlink Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pqwire

// Frontend message types (client -> server).
const (
	msgBind        = 'B'
	msgClose       = 'C'
	msgDescribe    = 'D'
	msgExecute     = 'E'
	msgFlush       = 'H'
	msgParse       = 'P'
	msgQuery       = 'Q'
	msgSync        = 'S'
	msgTerminate   = 'X'
	msgCopyFail    = 'f'
	msgCopyData    = 'd' // bidirectional
	msgCopyDone    = 'c' // bidirectional
	msgPasswordMsg = 'p' // also carries SASL responses
)

// Backend message types (server -> client).
const (
	msgParseComplete        = '1'
	msgBindComplete         = '2'
	msgCloseComplete        = '3'
	msgNotificationResponse = 'A'
	msgCommandComplete      = 'C'
	msgDataRow              = 'D'
	msgErrorResponse        = 'E'
	msgCopyInResponse       = 'G'
	msgCopyOutResponse      = 'H'
	msgEmptyQueryResponse   = 'I'
	msgBackendKeyData       = 'K'
	msgNoticeResponse       = 'N'
	msgAuthRequest          = 'R'
	msgParameterStatus      = 'S'
	msgRowDescription       = 'T'
	msgReadyForQuery        = 'Z'
	msgNoData               = 'n'
	msgPortalSuspended      = 's'
	msgParameterDescription = 't'
)

// Authentication request codes.
const (
	authOK                = 0
	authCleartextPassword = 3
	authMD5Password       = 5
	authSASL              = 10
	authSASLContinue      = 11
	authSASLFinal         = 12
)

// Error and notice field codes.
const (
	fieldSeverity   = 'S'
	fieldSeverityV  = 'V'
	fieldCode       = 'C'
	fieldMessage    = 'M'
	fieldDetail     = 'D'
	fieldHint       = 'H'
	fieldPosition   = 'P'
	fieldWhere      = 'W'
	fieldSchema     = 's'
	fieldTable      = 't'
	fieldColumn     = 'c'
	fieldConstraint = 'n'
)

// Transaction status indicators carried by ReadyForQuery.
const (
	TxnStatusIdle    = 'I'
	TxnStatusInBlock = 'T'
	TxnStatusFailed  = 'E'
)

// Protocol version 3.0 and the special startup request codes.
const (
	protocolMajor         = 3
	protocolMinor         = 0
	protocolVersionNumber = (protocolMajor << 16) | protocolMinor

	cancelRequestCode = (1234 << 16) | 5678
	sslRequestCode    = (1234 << 16) | 5679
)

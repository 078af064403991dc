// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import "fmt"

// Anomaly types reported by ValidateResponse
const (
	AnomalyBroadcastResponse = iota
	AnomalyAddressMismatch
	AnomalyCommandMismatch
)

// ValidationError describes a response that decoded cleanly but does not
// answer the request it was read for
type ValidationError struct {
	Type    int
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

// ValidateResponse checks that resp answers req.
// Returns an empty slice when the response is acceptable.
func ValidateResponse(req, resp *Frame) []ValidationError {
	var errs []ValidationError

	if resp.Address == AddressBroadcast {
		errs = append(errs, ValidationError{
			Type:    AnomalyBroadcastResponse,
			Message: "response carries the broadcast address",
		})
	} else if resp.Address != req.Address {
		errs = append(errs, ValidationError{
			Type:    AnomalyAddressMismatch,
			Message: fmt.Sprintf("response from address %d, request to %d", resp.Address, req.Address),
		})
	}

	if resp.Command != req.Command {
		errs = append(errs, ValidationError{
			Type:    AnomalyCommandMismatch,
			Message: fmt.Sprintf("response command 0x%02X, request 0x%02X", resp.Command, req.Command),
		})
	}

	return errs
}

// CheckResponse returns a *FrameError wrapping ErrResponseMismatch when
// resp does not answer req
func CheckResponse(req, resp *Frame) error {
	errs := ValidateResponse(req, resp)
	if len(errs) == 0 {
		return nil
	}
	return newFrameError(ErrResponseMismatch, "%s", errs[0].Message)
}

// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

package presenter

import (
	"sync"

	"github.com/foveated-streaming/hostd/internal/session"
)

// FakePresenter is an in-memory Presenter test double recording every
// call it receives, in order.
type FakePresenter struct {
	mu sync.Mutex

	Barcodes              []session.BarcodePayload
	StatusChanges         []Status
	PresentationRequests  []session.Information
	Errors                []error
}

func NewFakePresenter() *FakePresenter {
	return &FakePresenter{}
}

func (f *FakePresenter) GenerateBarcode(payload session.BarcodePayload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Barcodes = append(f.Barcodes, payload)
}

func (f *FakePresenter) SessionStatusDidChange(status Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StatusChanges = append(f.StatusChanges, status)
}

func (f *FakePresenter) BarcodePresentationRequested(info session.Information) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PresentationRequests = append(f.PresentationRequests, info)
}

func (f *FakePresenter) ConnectionErrorOccurred(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors = append(f.Errors, err)
}

// LastStatus returns the most recently reported Status, or "" if none
// has been reported yet.
func (f *FakePresenter) LastStatus() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.StatusChanges) == 0 {
		return ""
	}
	return f.StatusChanges[len(f.StatusChanges)-1]
}

// TapCard Core
// Copyright (c) 2026 The TapCard Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of TapCard Core.
//
// TapCard Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// TapCard Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with TapCard Core.  If not, see <http://www.gnu.org/licenses/>.

// Package pn532 provides the PN532 hardware backend: it implements the
// session.Interceptor arming contract and surfaces detected tags as
// tagwriter.Tag values.
package pn532

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ZaparooProject/go-pn532"
	"github.com/ZaparooProject/go-pn532/detection"
	_ "github.com/ZaparooProject/go-pn532/detection/uart"
	"github.com/ZaparooProject/go-pn532/polling"
	"github.com/ZaparooProject/go-pn532/transport/i2c"
	"github.com/ZaparooProject/go-pn532/transport/spi"
	"github.com/ZaparooProject/go-pn532/transport/uart"
	"github.com/rs/zerolog/log"
	"github.com/tapcard/tapcard-core/pkg/config"
	"github.com/tapcard/tapcard-core/pkg/tagwriter"
)

const (
	quickDetectionTimeout = 5 * time.Second
	deviceTimeout         = 5 * time.Second
)

// PN532Device abstracts the pn532.Device for testing.
type PN532Device interface {
	Init() error
	SetTimeout(timeout time.Duration) error
	Close() error
}

// PollingSession abstracts the polling.Session for testing.
type PollingSession interface {
	Start(ctx context.Context) error
	Close() error
	SetOnCardDetected(callback func(*pn532.DetectedTag) error)
	SetOnCardRemoved(callback func())
}

// TransportFactory creates a transport from device info.
type TransportFactory func(deviceInfo detection.DeviceInfo) (pn532.Transport, error)

// DeviceFactory creates a PN532 device from a transport.
type DeviceFactory func(transport pn532.Transport) (PN532Device, error)

// SessionFactory creates a polling session from a device.
type SessionFactory func(device PN532Device, sessionConfig *polling.Config) PollingSession

// DefaultTransportFactory creates a real transport.
func DefaultTransportFactory(deviceInfo detection.DeviceInfo) (pn532.Transport, error) {
	switch deviceInfo.Transport {
	case "uart":
		transport, err := uart.New(deviceInfo.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create UART transport: %w", err)
		}
		return transport, nil
	case "i2c":
		transport, err := i2c.New(deviceInfo.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create I2C transport: %w", err)
		}
		return transport, nil
	case "spi":
		transport, err := spi.New(deviceInfo.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SPI transport: %w", err)
		}
		return transport, nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", deviceInfo.Transport)
	}
}

// DefaultDeviceFactory creates a real pn532.Device.
func DefaultDeviceFactory(transport pn532.Transport) (PN532Device, error) {
	device, err := pn532.New(transport)
	if err != nil {
		return nil, fmt.Errorf("failed to create PN532 device: %w", err)
	}
	return device, nil
}

// realSession wraps polling.Session to implement PollingSession.
type realSession struct {
	session *polling.Session
}

func (s *realSession) Start(ctx context.Context) error {
	if err := s.session.Start(ctx); err != nil {
		return fmt.Errorf("failed to start polling session: %w", err)
	}
	return nil
}

func (s *realSession) Close() error {
	if err := s.session.Close(); err != nil {
		return fmt.Errorf("failed to close polling session: %w", err)
	}
	return nil
}

func (s *realSession) SetOnCardDetected(callback func(*pn532.DetectedTag) error) {
	s.session.OnCardDetected = callback
}

func (s *realSession) SetOnCardRemoved(callback func()) {
	s.session.OnCardRemoved = callback
}

// DefaultSessionFactory creates a real polling.Session.
func DefaultSessionFactory(device PN532Device, sessionConfig *polling.Config) PollingSession {
	if dev, ok := device.(*pn532.Device); ok {
		return &realSession{session: polling.NewSession(dev, sessionConfig)}
	}
	return nil
}

// Driver owns one PN532 reader. Open connects the hardware; Arm and Disarm
// control whether the radio is actually polling for tags.
type Driver struct {
	cfg              *config.Instance
	device           PN532Device
	realDevice       *pn532.Device
	session          PollingSession
	armCancel        context.CancelFunc
	transportFactory TransportFactory
	deviceFactory    DeviceFactory
	sessionFactory   SessionFactory
	name             string
	deviceInfo       config.ReadersConnect
	wg               sync.WaitGroup
	mutex            sync.RWMutex
}

func NewDriver(cfg *config.Instance) *Driver {
	return &Driver{
		cfg:              cfg,
		transportFactory: DefaultTransportFactory,
		deviceFactory:    DefaultDeviceFactory,
		sessionFactory:   DefaultSessionFactory,
	}
}

// IDs returns the connection driver names this backend accepts.
func (*Driver) IDs() []string {
	return []string{
		"pn532",
		"pn532_uart",
		"pn532_i2c",
		"pn532_spi",
	}
}

// Open initializes the hardware but does not start polling; polling is owned
// by Arm so that tag interception is active exactly when the session layer
// says it may be.
func (d *Driver) Open(device config.ReadersConnect) error {
	if !slices.Contains(d.IDs(), device.Driver) {
		return errors.New("invalid reader id: " + device.Driver)
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	// Extract transport type from driver (e.g., "pn532_uart" -> "uart")
	transportType := strings.TrimPrefix(device.Driver, "pn532_")
	if transportType == device.Driver {
		transportType = "uart"
	}

	deviceInfo := detection.DeviceInfo{
		Transport: transportType,
		Path:      device.Path,
	}

	transport, err := d.transportFactory(deviceInfo)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	d.name = device.ConnectionString()
	log.Debug().Msgf("opening PN532 device: %s", d.name)

	d.device, err = d.deviceFactory(transport)
	if err != nil {
		if transport != nil {
			_ = transport.Close()
		}
		return fmt.Errorf("failed to create PN532 device: %w", err)
	}

	// Keep the real device around for tag operations (mocks won't reach
	// the tag paths in tests)
	if realDev, ok := d.device.(*pn532.Device); ok {
		d.realDevice = realDev
	}

	if err := d.device.Init(); err != nil {
		_ = d.device.Close()
		return fmt.Errorf("failed to initialize PN532 device: %w", err)
	}

	// Matching cmd/reader behavior prevents constant LED blinking
	if err := d.device.SetTimeout(deviceTimeout); err != nil {
		_ = d.device.Close()
		return fmt.Errorf("failed to set device timeout: %w", err)
	}

	d.deviceInfo = device
	log.Info().Msgf("PN532 reader opened: %s", d.name)
	return nil
}

// Arm starts the polling session and delivers each detected tag to onTag.
// Implements session.Interceptor.
func (d *Driver) Arm(ctx context.Context, onTag func(tagwriter.Tag)) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.device == nil {
		return errors.New("device not open")
	}
	if d.session != nil {
		// already armed
		return nil
	}

	sess := d.sessionFactory(d.device, polling.DefaultConfig())
	if sess == nil {
		return errors.New("failed to create polling session")
	}

	armCtx, cancel := context.WithCancel(ctx)
	d.armCancel = cancel
	d.session = sess

	sess.SetOnCardDetected(func(detected *pn532.DetectedTag) error {
		log.Info().Msgf("new tag detected: %s (%s)", detected.Type, detected.UID)
		onTag(d.wrapTag(detected))
		return nil
	})
	sess.SetOnCardRemoved(func() {
		log.Debug().Msg("tag removed")
	})

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := sess.Start(armCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("PN532 polling session ended with error")
			d.markLost(sess)
		}
	}()

	return nil
}

// markLost records that the reader dropped off the bus mid-session. The
// device handle is discarded so Connected reports false and the reader
// manager can reconnect.
func (d *Driver) markLost(sess PollingSession) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.session == sess {
		d.session = nil
		if d.armCancel != nil {
			d.armCancel()
			d.armCancel = nil
		}
	}

	if d.device != nil {
		if err := d.device.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing lost PN532 device")
		}
		d.device = nil
		d.realDevice = nil
	}
}

// Disarm stops polling. It may be called from inside an onTag delivery, so
// it never waits for the polling goroutine synchronously.
func (d *Driver) Disarm() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.session == nil {
		return nil
	}

	if d.armCancel != nil {
		d.armCancel()
		d.armCancel = nil
	}

	sess := d.session
	d.session = nil
	go func() {
		if err := sess.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing polling session")
		}
	}()

	return nil
}

// Close disarms and shuts down the hardware.
func (d *Driver) Close() error {
	_ = d.Disarm()

	// Wait for the polling goroutine before taking the lock; on a session
	// error it calls markLost, which needs the lock itself.
	d.wg.Wait()

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.device != nil {
		if err := d.device.Close(); err != nil {
			return fmt.Errorf("failed to close PN532 device: %w", err)
		}
		d.device = nil
		d.realDevice = nil
	}

	return nil
}

func (d *Driver) Connected() bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.device != nil
}

func (d *Driver) Info() string {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return "PN532 (" + d.name + ")"
}

// Detect scans for an unclaimed PN532 device and returns its connection
// string, or "" if none found.
func Detect(connected []string) string {
	ignorePaths := make([]string, 0, len(connected))
	for _, conn := range connected {
		parts := strings.SplitN(conn, ":", 2)
		if len(parts) >= 2 && parts[1] != "" {
			ignorePaths = append(ignorePaths, parts[1])
		}
	}

	opts := detection.DefaultOptions()
	opts.Timeout = quickDetectionTimeout
	opts.Mode = detection.Safe
	opts.IgnorePaths = ignorePaths

	devices, err := detection.DetectAll(&opts)
	if err != nil {
		log.Trace().Err(err).Msg("PN532 detection failed")
		return ""
	}
	if len(devices) == 0 {
		return ""
	}

	device := devices[0]
	deviceStr := fmt.Sprintf("pn532_%s:%s", device.Transport, device.Path)
	log.Trace().Msgf("detected PN532 device: %s", deviceStr)
	return deviceStr
}

package rtc

import (
	"github.com/pion/interceptor"
	"github.com/pion/transport/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// NewAPI builds a pion API with the default codecs and interceptors. A nil
// network uses the host stack.
func NewAPI(level zerolog.Level, network transport.Net) (*webrtc.API, error) {
	se := webrtc.SettingEngine{LoggerFactory: LoggerFactory{Level: level}}
	if network != nil {
		se.SetNet(network)
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, err
	}

	return webrtc.NewAPI(
		webrtc.WithSettingEngine(se),
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
	), nil
}

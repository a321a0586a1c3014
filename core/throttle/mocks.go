//go:build gomock || generate

package throttle

//go:generate sh -c "go run go.uber.org/mock/mockgen -package mockthrottle -destination mocks/mock_stream_listener.go github.com/dep2p/netthrottle/core/throttle StreamListener"
//go:generate sh -c "go run go.uber.org/mock/mockgen -package mockthrottle -destination mocks/mock_channel.go github.com/dep2p/netthrottle/core/throttle Channel"

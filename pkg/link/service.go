package link

import (
	"google.golang.org/grpc"
)

const (
	serviceName    = "ircxprop.link.v1.Link"
	exchangeMethod = "/" + serviceName + "/Exchange"
)

// linkServer is implemented by Manager. Each Exchange stream carries one
// server-to-server link; every message is a single protocol line wrapped in
// a google.protobuf.StringValue.
type linkServer interface {
	exchange(stream grpc.ServerStream) error
}

func exchangeHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(linkServer).exchange(stream)
}

var linkServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*linkServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Exchange",
			Handler:       exchangeHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "ircxprop/link/v1/link.proto",
}

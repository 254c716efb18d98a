// Package grpc provides the gRPC server.
//
// It exposes the standard grpc.health.v1 service, reporting SERVING while
// the worker pool is healthy, and server reflection for tooling such as
// grpcurl and grpc_health_probe.
package grpc

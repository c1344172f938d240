package zonecount

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"

	tracing "github.com/ease-lab/vhive/utils/tracing/go"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const (
	executorServiceName  = "zonecount.Executor"
	executorInvokeMethod = "/" + executorServiceName + "/Invoke"
)

var knativeDriver *Driver

// invokeRequest and invokeResponse carry serialized tasks and task results.
type invokeRequest struct {
	Payload []byte `json:"payload"`
}

type invokeResponse struct {
	Payload []byte `json:"payload"`
}

// jsonCodec lets the executor service exchange plain structs over gRPC.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return "json"
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type executorServer interface {
	Invoke(ctx context.Context, req *invokeRequest) (*invokeResponse, error)
}

func executorInvokeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(invokeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(executorServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: executorInvokeMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(executorServer).Invoke(ctx, req.(*invokeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var executorServiceDesc = grpc.ServiceDesc{
	ServiceName: executorServiceName,
	HandlerType: (*executorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Invoke",
			Handler:    executorInvokeHandler,
		},
	},
	Streams: []grpc.StreamDesc{},
}

// runningInKnative infers if the program is running in Knative via inspection of the environment
func runningInKnative() bool {
	// ALL of the following envvars are expected
	expectedEnvVars := []string{"KNATIVE"}
	for _, envVar := range expectedEnvVars {
		if os.Getenv(envVar) == "" {
			return false
		}
	}
	return true
}

type knativeServer struct {
	driver *Driver
}

func newKnativeServer() *knativeServer {
	return &knativeServer{driver: knativeDriver}
}

// Start serves tasks on $PORT until the process is stopped.
func (ks *knativeServer) Start() {
	port := os.Getenv("PORT")
	if port == "" {
		log.Warn("PORT envvar is missing, defaulting to 80")
		port = "80"
	}

	var grpcServer *grpc.Server
	if tracing.IsTracingEnabled() {
		grpcServer = tracing.GetGRPCServerWithUnaryInterceptor()
	} else {
		grpcServer = grpc.NewServer()
	}
	grpcServer.RegisterService(&executorServiceDesc, ks)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", port))
	if err != nil {
		log.Fatal("Failed to listen: ", err)
	}

	if err := grpcServer.Serve(lis); err != nil {
		log.Fatal("Failed to serve: ", err)
	}
}

func (ks *knativeServer) Invoke(ctx context.Context, req *invokeRequest) (*invokeResponse, error) {
	var task task
	if err := json.Unmarshal(req.Payload, &task); err != nil {
		log.Error("Failed to unmarshal: ", err)
		return nil, err
	}
	s, err := runTask(ctx, ks.driver, task)
	if err != nil {
		log.Error("Failed to handle request: ", err)
		return nil, err
	}
	return &invokeResponse{Payload: []byte(s)}, nil
}

type knativeExecutor struct {
	serviceURL  string
	dialOptions []grpc.DialOption
}

func newKnativeExecutor(serviceURL string) *knativeExecutor {
	dialOptions := []grpc.DialOption{grpc.WithBlock(), grpc.WithInsecure()}
	if tracing.IsTracingEnabled() {
		dialOptions = append(dialOptions, grpc.WithUnaryInterceptor(otelgrpc.UnaryClientInterceptor()))
	}
	return &knativeExecutor{
		serviceURL:  serviceURL,
		dialOptions: dialOptions,
	}
}

func (k *knativeExecutor) RunMapper(ctx context.Context, job *Job, jobNumber int, binID uint, inputSplits []inputSplit) error {
	return k.run(ctx, job, newTask(job, jobNumber, MapPhase, binID, inputSplits))
}

func (k *knativeExecutor) RunReducer(ctx context.Context, job *Job, jobNumber int, binID uint) error {
	return k.run(ctx, job, newTask(job, jobNumber, ReducePhase, binID, nil))
}

func (k *knativeExecutor) run(ctx context.Context, job *Job, t task) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}

	resultPayload, err := k.invoke(ctx, payload)
	if err != nil {
		return err
	}
	loadTaskResult(resultPayload).collect(job)
	return nil
}

func (k *knativeExecutor) invoke(ctx context.Context, payload []byte) ([]byte, error) {
	conn, err := grpc.DialContext(ctx, k.serviceURL, k.dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", k.serviceURL, err)
	}
	defer conn.Close()

	resp := new(invokeResponse)
	err = conn.Invoke(ctx, executorInvokeMethod, &invokeRequest{Payload: payload}, resp, grpc.CallContentSubtype(jsonCodec{}.Name()))
	if err != nil {
		return nil, fmt.Errorf("failed to invoke %s: %w", k.serviceURL, err)
	}
	return resp.Payload, nil
}

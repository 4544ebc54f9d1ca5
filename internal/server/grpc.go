package server

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/erg0nix/chorus/internal/session"
)

const (
	ServiceName = "chorus.v1.Chorus"
	streamPath  = "/" + ServiceName + "/Stream"

	// FragmentKindKey is the trailer carrying the kind of a terminal fragment that is not
	// plain text.
	FragmentKindKey = "chorus-fragment-kind"
)

type chorusService interface {
	Stream(*structpb.Struct, grpc.ServerStreamingServer[wrapperspb.StringValue]) error
}

func streamHandler(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(chorusService).Stream(req, &grpc.GenericServerStream[structpb.Struct, wrapperspb.StringValue]{ServerStream: stream})
}

// The request is a Struct with "question" and "persona" fields; each reply fragment is sent as
// a StringValue.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*chorusService)(nil),
	Streams: []grpc.StreamDesc{
		{StreamName: "Stream", Handler: streamHandler, ServerStreams: true},
	},
	Metadata: "chorus/v1/chorus.proto",
}

// GRPC streams replies fragment by fragment. Like HTTP, every call gets its own session.
type GRPC struct {
	Sessions       *session.Manager
	DefaultPersona string
	Logger         *slog.Logger
}

// Register adds the chorus service and a health service to s.
func (g *GRPC) Register(s *grpc.Server) {
	s.RegisterService(&serviceDesc, g)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
}

func (g *GRPC) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

func (g *GRPC) Stream(req *structpb.Struct, stream grpc.ServerStreamingServer[wrapperspb.StringValue]) error {
	fields := req.GetFields()
	question := fields["question"].GetStringValue()
	personaID := strings.TrimSpace(fields["persona"].GetStringValue())
	if personaID == "" {
		personaID = g.DefaultPersona
	}

	s, err := g.Sessions.NewSession(personaID)
	if err != nil {
		if errors.Is(err, session.ErrUnknownPersona) {
			return status.Error(codes.NotFound, err.Error())
		}
		return status.Error(codes.Internal, err.Error())
	}
	defer s.Close()

	if strings.TrimSpace(question) == "" {
		return stream.Send(wrapperspb.String(session.EmptyQuestionMessage))
	}

	g.logger().Info("stream", "persona", personaID, "session", s.ID())

	for fragment := range s.Stream(stream.Context(), question) {
		if fragment.Terminal() {
			stream.SetTrailer(metadata.Pairs(FragmentKindKey, string(fragment.Kind)))
		}
		if err := stream.Send(wrapperspb.String(fragment.Text)); err != nil {
			return err
		}
	}
	return nil
}

type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to a chorus gRPC server without transport security.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Healthy reports whether the server answers health checks for the chorus service.
func (c *Client) Healthy(ctx context.Context) bool {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
}

// Stream asks persona the question and yields fragments as they arrive. A fragment's kind is
// only known once the trailer arrives, so each fragment is yielded after the next one is
// received. An RPC failure is yielded once as the error, after which iteration stops.
func (c *Client) Stream(ctx context.Context, question, persona string) iter.Seq2[session.Fragment, error] {
	return func(yield func(session.Fragment, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		cs, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], streamPath)
		if err != nil {
			yield(session.Fragment{}, err)
			return
		}

		req, err := structpb.NewStruct(map[string]any{"question": question, "persona": persona})
		if err != nil {
			yield(session.Fragment{}, err)
			return
		}
		if err := cs.SendMsg(req); err != nil {
			yield(session.Fragment{}, err)
			return
		}
		if err := cs.CloseSend(); err != nil {
			yield(session.Fragment{}, err)
			return
		}

		var pending *session.Fragment
		for {
			msg := new(wrapperspb.StringValue)
			err := cs.RecvMsg(msg)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				yield(session.Fragment{}, err)
				return
			}

			if pending != nil && !yield(*pending, nil) {
				return
			}
			pending = &session.Fragment{Text: msg.GetValue(), Kind: session.FragmentText}
		}

		if pending == nil {
			return
		}
		if kinds := cs.Trailer().Get(FragmentKindKey); len(kinds) > 0 {
			pending.Kind = session.FragmentKind(kinds[0])
		}
		yield(*pending, nil)
	}
}

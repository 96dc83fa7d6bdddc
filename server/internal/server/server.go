/*
Package server HTTP 服务器封装

HTTP2Server：标准 net/http，TLS 启用时自动协商 h2
HTTP3Server：quic-go 的 HTTP/3 (QUIC)，需要 TLS；AltSvc 在 HTTP/2 响应中通告 h3 端点
*/
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"go.uber.org/zap"
)

/*
NewTLSConfig 加载证书并构建 TLS 配置
最低 TLS 1.2，ALPN 顺序 h2 → http/1.1
*/
func NewTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("加载证书失败: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"h2", "http/1.1"},
	}, nil
}

type HTTP2Server struct {
	srv    *http.Server
	logger *zap.Logger
}

func NewHTTP2Server(addr string, handler http.Handler, tlsConfig *tls.Config, readTimeout, writeTimeout time.Duration) *HTTP2Server {
	return &HTTP2Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			TLSConfig:         tlsConfig,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		logger: zap.L().Named("http2"),
	}
}

/* Start 以 TLS 启动；tlsConfig 已含证书时 certFile/keyFile 可为空 */
func (s *HTTP2Server) Start(certFile, keyFile string) error {
	if s.srv.TLSConfig != nil && len(s.srv.TLSConfig.Certificates) > 0 {
		certFile, keyFile = "", ""
	}
	return s.srv.ListenAndServeTLS(certFile, keyFile)
}

/* StartInsecure 明文 HTTP/1.1，仅用于开发或反向代理之后 */
func (s *HTTP2Server) StartInsecure() error {
	return s.srv.ListenAndServe()
}

func (s *HTTP2Server) Shutdown(ctx context.Context) error {
	s.logger.Info("正在关闭 HTTP 服务器")
	return s.srv.Shutdown(ctx)
}

func (s *HTTP2Server) Addr() string {
	return s.srv.Addr
}

/*
HTTP3Server HTTP/3 (QUIC) 服务器
*/
type HTTP3Server struct {
	srv    *http3.Server
	logger *zap.Logger
}

func NewHTTP3Server(addr string, handler http.Handler, tlsConfig *tls.Config) *HTTP3Server {
	var quicTLS *tls.Config
	if tlsConfig != nil {
		quicTLS = http3.ConfigureTLSConfig(tlsConfig.Clone())
	}
	return &HTTP3Server{
		srv: &http3.Server{
			Addr:      addr,
			Handler:   handler,
			TLSConfig: quicTLS,
			QUICConfig: &quic.Config{
				MaxIdleTimeout:  60 * time.Second,
				KeepAlivePeriod: 20 * time.Second,
			},
		},
		logger: zap.L().Named("http3"),
	}
}

func (s *HTTP3Server) Start() error {
	if s.srv.TLSConfig == nil {
		return fmt.Errorf("HTTP/3 需要 TLS 配置")
	}
	return s.srv.ListenAndServe()
}

func (s *HTTP3Server) Shutdown(ctx context.Context) error {
	s.logger.Info("正在关闭 HTTP/3 服务器")
	return s.srv.Shutdown(ctx)
}

/*
AltSvc 包装 HTTP/2 handler，在响应头中写入 Alt-Svc 通告 h3 端口
客户端据此在后续请求中升级到 QUIC
*/
func (s *HTTP3Server) AltSvc(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.srv.SetQUICHeaders(w.Header()); err != nil {
			s.logger.Debug("写入 Alt-Svc 失败", zap.Error(err))
		}
		next.ServeHTTP(w, r)
	})
}

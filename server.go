package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

//ErrServerClosed Shutdown之后Serve返回的错误
var ErrServerClosed = errors.New("gis server closed")

//Server 瓦片服务,每个连接一个goroutine,每个连接只处理一个请求
type Server struct {
	Addr         string
	Router       *Router
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxConns     int

	mu     sync.Mutex
	ln     net.Listener
	closed bool
	wg     sync.WaitGroup
}

//ListenAndServe 监听Addr并开始服务
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

//Serve 在ln上接受连接,直到Shutdown或监听出错
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.ln = ln
	s.mu.Unlock()
	log.Infof("gis server listening on %s", ln.Addr())

	var sem chan struct{}
	if s.MaxConns > 0 {
		sem = make(chan struct{}, s.MaxConns)
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Warnf("accept connection error ~ %s", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if sem != nil {
			sem <- struct{}{}
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return ErrServerClosed
		}
		s.wg.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()
			if sem != nil {
				defer func() { <-sem }()
			}
			s.handleConn(conn)
		}()
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

//Shutdown 停止监听,等待处理中的连接结束或ctx到期
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

//handleConn 读一个请求,路由,写响应后关闭连接
func (s *Server) handleConn(conn net.Conn) {
	openConns.Inc()
	defer openConns.Dec()
	defer conn.Close()

	logger := log.WithField("remote", conn.RemoteAddr().String())
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("connection worker panic ~ %v", r)
		}
	}()

	if s.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
	}
	req, err := http.ReadRequest(bufio.NewReader(conn))
	if err != nil {
		logger.Warnf("read request error ~ %s", err)
		return
	}

	start := time.Now()
	resp := s.Router.Route(req.URL.Path)

	if s.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
	}
	if err := writeResponse(conn, req, resp); err != nil {
		logger.Warnf("write response error ~ %s", err)
		return
	}
	logger.Debugf("%s %s %d, %d bytes, %.3fs", req.Method, req.URL.Path, resp.Status, len(resp.Body), time.Since(start).Seconds())
}

//writeResponse 写HTTP/1.1响应,带Content-Length和Connection: close
func writeResponse(w io.Writer, req *http.Request, resp Response) error {
	r := &http.Response{
		StatusCode:    resp.Status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Request:       req,
		Header:        http.Header{"Content-Type": {resp.ContentType}},
		ContentLength: int64(len(resp.Body)),
		Body:          io.NopCloser(bytes.NewReader(resp.Body)),
		Close:         true,
	}
	bw := bufio.NewWriter(w)
	if err := r.Write(bw); err != nil {
		return err
	}
	return bw.Flush()
}

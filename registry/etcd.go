// etcd-backed directory. Channel announcements live under
//
//	Key:   /post-rpc/channels/{channelID}
//	Value: JSON-encoded ChannelInfo
//
// with a TTL lease: if the serving context crashes, the lease expires and
// the announcement disappears on its own, so callers never probe a ghost
// channel.
package registry

import (
	"context"

	clientv3 "go.etcd.io/etcd/client/v3"

	"post-rpc/codec"
)

const etcdPrefix = "/post-rpc/channels/"

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines
	cdc    codec.Codec
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c, cdc: codec.Default}, nil
}

// Register announces the channel under a TTL lease and keeps the lease
// alive in the background until Deregister or process death.
func (r *EtcdRegistry) Register(channelID string, info ChannelInfo, ttl int64) error {
	ctx := context.TODO()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := r.cdc.Encode(info)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, etcdPrefix+channelID, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}
	// Drain keepalive acks so the channel never fills up.
	go func() {
		for range ch {
		}
	}()
	return nil
}

func (r *EtcdRegistry) Deregister(channelID string) error {
	_, err := r.client.Delete(context.TODO(), etcdPrefix+channelID)
	return err
}

func (r *EtcdRegistry) Discover(channelID string) (*ChannelInfo, error) {
	resp, err := r.client.Get(context.TODO(), etcdPrefix+channelID)
	if err != nil {
		return nil, err
	}
	if len(resp.Kvs) == 0 {
		return nil, ErrNotFound
	}
	info := new(ChannelInfo)
	if err := r.cdc.Decode(resp.Kvs[0].Value, info); err != nil {
		return nil, err
	}
	return info, nil
}

// Watch re-reads the announcement on every change under the channel key.
// Server-push from etcd, no polling.
func (r *EtcdRegistry) Watch(channelID string) <-chan *ChannelInfo {
	ctx := context.TODO()
	ch := make(chan *ChannelInfo, 1)

	go func() {
		watchChan := r.client.Watch(ctx, etcdPrefix+channelID)
		for range watchChan {
			info, err := r.Discover(channelID)
			if err != nil {
				ch <- nil
				continue
			}
			ch <- info
		}
	}()

	return ch
}

// Close releases the etcd connection.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}

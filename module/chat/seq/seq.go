package seq

import (
	"context"
	"strconv"
	"time"

	"QChat/tools/errs"

	"github.com/redis/go-redis/v9"
)

// In-segment allocation: KEYS[1]=key; ARGV[1]=need; ARGV[2]=segEnd.
// Returns {0,start,end} on success; {1} when no segment is loaded;
// {3,curr,end} when the segment is exhausted or stale.
var luaInSegment = redis.NewScript(`
  local k = KEYS[1]
  local need = tonumber(ARGV[1])
  local segEnd = tonumber(ARGV[2])

  local curr = redis.call('HGET', k, 'curr')
  local endv = redis.call('HGET', k, 'end')
  if not curr or not endv then
    return {1}
  end
  curr = tonumber(curr); endv = tonumber(endv)

  if segEnd ~= 0 and segEnd ~= endv then
    return {3, curr, endv}
  end

  local start = curr + 1
  local newv  = curr + need
  if newv > endv then
    return {3, curr, endv}
  end
  redis.call('HSET', k, 'curr', newv)
  return {0, start, endv}
`)

// Load/refresh a segment: curr=start-1, end=end, with a 1h TTL so idle
// rooms fall back to the Mongo segment source.
var luaSetSegment = redis.NewScript(`
  local k = KEYS[1]
  local curr = tonumber(ARGV[1])
  local endv = tonumber(ARGV[2])
  redis.call('HSET', k, 'curr', curr, 'end', endv)
  redis.call('PEXPIRE', k, 3600000)
  return 1
`)

// SegmentSource hands out contiguous [start,end] blocks of per-room
// sequence numbers from durable storage.
type SegmentSource interface {
	AllocSegment(ctx context.Context, roomID int64, block int64) (start, end int64, err error)
}

// Allocator assigns strictly increasing per-room sequence numbers. Hot
// allocation happens in Redis; blocks are leased from the SegmentSource
// when the cached segment runs out. The unused tail of a leased segment
// is lost on restart, so numbers may skip but never repeat.
type Allocator struct {
	Rdb       redis.Scripter
	Source    SegmentSource
	BlockSize int64
	MaxRetry  int
}

func (a *Allocator) ensure() {
	if a.BlockSize <= 0 {
		a.BlockSize = 256
	}
	if a.MaxRetry == 0 {
		a.MaxRetry = 10
	}
}

func seqKey(roomID int64) string { return "seq:room:" + strconv.FormatInt(roomID, 10) }

// Next returns the next sequence number for roomID.
func (a *Allocator) Next(ctx context.Context, roomID int64) (int64, error) {
	return a.Malloc(ctx, roomID, 1)
}

// Malloc allocates need contiguous sequence numbers and returns the first.
func (a *Allocator) Malloc(ctx context.Context, roomID int64, need int64) (int64, error) {
	a.ensure()
	if need <= 0 {
		need = 1
	}
	key := seqKey(roomID)

	// fast path: allocate inside the cached segment
	if res, e := luaInSegment.Run(ctx, a.Rdb, []string{key}, need, 0).Result(); e == nil {
		arr := res.([]interface{})
		switch arr[0].(int64) {
		case 0:
			return arr[1].(int64), nil
		case 1, 3:
			// no segment / exhausted, lease a new block below
		default:
			return 0, errs.New("unknown allocator state", "state", arr[0])
		}
	}

	// lease a block from the source, install it, then allocate
	var lastErr error
	for i := 0; i < a.MaxRetry; i++ {
		block := a.BlockSize
		if need > block {
			block = need * 2
		}

		segStart, segEnd, e := a.Source.AllocSegment(ctx, roomID, block)
		if e != nil {
			lastErr = e
			break
		}

		if _, e = luaSetSegment.Run(ctx, a.Rdb, []string{key}, segStart-1, segEnd).Result(); e != nil {
			lastErr = e
			time.Sleep(10 * time.Millisecond)
			continue
		}

		res2, e := luaInSegment.Run(ctx, a.Rdb, []string{key}, need, segEnd).Result()
		if e != nil {
			lastErr = e
			time.Sleep(10 * time.Millisecond)
			continue
		}
		arr := res2.([]interface{})
		if arr[0].(int64) == 0 {
			return arr[1].(int64), nil
		}
		// segment raced with a concurrent writer, retry
		time.Sleep(5 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = errs.New("seq malloc retry exceeded", "room", roomID)
	}
	return 0, lastErr
}

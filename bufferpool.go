package torrent

import "sync"

// syncPoolBufferPool is the default BufferPool, backed by sync.Pool. Get
// rounds up to one of a small set of size classes so the pool doesn't
// thrash on the exact chunk-size variance the wire codec produces.
type syncPoolBufferPool struct {
	pools [len(bufferSizeClasses)]sync.Pool
}

var bufferSizeClasses = [...]int{16*1024 + 64, 32 * 1024, 64 * 1024, 256 * 1024}

// NewBufferPool returns a new instance of the default BufferPool; each
// call builds a separate set of pools.
func NewBufferPool() BufferPool {
	bp := &syncPoolBufferPool{}
	for i, size := range bufferSizeClasses {
		size := size
		bp.pools[i].New = func() interface{} { return make([]byte, size) }
	}
	return bp
}

func (bp *syncPoolBufferPool) classFor(length int) int {
	for i, size := range bufferSizeClasses {
		if length <= size {
			return i
		}
	}
	return len(bufferSizeClasses) - 1
}

func (bp *syncPoolBufferPool) Get(length int) []byte {
	class := bp.classFor(length)
	buf := bp.pools[class].Get().([]byte)
	if cap(buf) < length {
		return make([]byte, length)
	}
	return buf[:length]
}

func (bp *syncPoolBufferPool) Free(buf []byte) {
	class := bp.classFor(cap(buf))
	bp.pools[class].Put(buf[:cap(buf)])
}

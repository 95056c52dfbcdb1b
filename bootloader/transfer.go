package bootloader

import (
	"context"
	"fmt"
	"time"

	"github.com/moffa90/go-stm32dfu/firmware"
	"github.com/moffa90/go-stm32dfu/protocol"
)

// writeImage downloads the image in MaxBlockSize blocks. A trailing partial
// block is padded with 0xFF so the device CRC matches a full erased block.
func (s *session) writeImage(ctx context.Context, img *firmware.Image) error {
	start := time.Now()
	blockSize := img.MaxBlockSize
	payload := img.Payload()
	numFull, remainder := img.Blocks()
	total := img.TotalBlocks()

	blockNum := 0
	for ; blockNum < numFull; blockNum++ {
		off := blockNum * blockSize
		if err := s.writeBlock(ctx, img.StartAddress, payload[off:off+blockSize], blockNum); err != nil {
			return fmt.Errorf("write block %d: %w", blockNum, err)
		}
		s.p.reportProgress(newProgress(PhaseProgramming, blockNum+1, total, off+blockSize, start))
	}

	if remainder > 0 {
		block := padBlock(payload[blockNum*blockSize:], blockSize)
		if err := s.writeBlock(ctx, img.StartAddress, block, blockNum); err != nil {
			return fmt.Errorf("write block %d: %w", blockNum, err)
		}
		s.p.reportProgress(newProgress(PhaseProgramming, total, total, img.Length, start))
	}

	return nil
}

// padBlock copies data into a blockSize buffer filled with 0xFF.
func padBlock(data []byte, blockSize int) []byte {
	block := make([]byte, blockSize)
	n := copy(block, data)
	for i := n; i < blockSize; i++ {
		block[i] = 0xFF
	}
	return block
}

// writeBlock runs one DNLOAD cycle. The address pointer is only set for
// block 0; the device advances it by one block per wValue afterwards.
func (s *session) writeBlock(ctx context.Context, address uint32, block []byte, blockNum int) error {
	op := fmt.Sprintf("download block %d", blockNum)

	if _, err := s.awaitIdle(ctx, op); err != nil {
		return err
	}

	if blockNum == 0 {
		if _, err := s.setAddressPointer(ctx, address); err != nil {
			return err
		}
	}

	if _, err := s.awaitIdle(ctx, op); err != nil {
		return err
	}

	if err := s.downloadBlock(ctx, block, blockNum); err != nil {
		return err
	}

	// first GETSTATUS starts the write
	st, err := s.getStatus(ctx)
	if err != nil {
		return err
	}
	if st.State != protocol.DownloadBusy {
		return &StateError{Op: op, Expected: protocol.DownloadBusy, Actual: st.State, Code: st.Code}
	}

	// second GETSTATUS performs it and reports write failures
	st, err = s.getStatus(ctx)
	if err != nil {
		return err
	}
	if st.State == protocol.Error {
		return &StateError{Op: op, Expected: protocol.DownloadIdle, Actual: st.State, Code: st.Code}
	}

	_, err = s.drainToIdle(ctx, op, st)
	return err
}

// readImage uploads byteCount bytes starting at address. The loop runs one
// block past the full-block count so a trailing partial block is read as a
// full block and trimmed.
func (s *session) readImage(ctx context.Context, address uint32, blockSize, byteCount int) ([]byte, error) {
	const op = "read image"
	start := time.Now()

	if _, err := s.awaitIdle(ctx, op); err != nil {
		return nil, err
	}

	st, err := s.setAddressPointer(ctx, address)
	if err != nil {
		return nil, err
	}

	out := make([]byte, byteCount)
	block := make([]byte, blockSize)
	remaining := byteCount
	numBlocks := byteCount / blockSize
	total := (byteCount + blockSize - 1) / blockSize

	for nBlock := 0; nBlock <= numBlocks; nBlock++ {
		if st, err = s.drainToIdle(ctx, op, st); err != nil {
			return nil, fmt.Errorf("read block %d: %w", nBlock, err)
		}

		n, err := s.uploadBlock(ctx, block, nBlock)
		if err != nil {
			return nil, fmt.Errorf("read block %d: %w", nBlock, err)
		}

		if st, err = s.getStatus(ctx); err != nil {
			return nil, fmt.Errorf("read block %d: %w", nBlock, err)
		}

		chunk := min(remaining, blockSize)
		if n < chunk {
			return nil, &TransportError{
				Op:  "upload",
				Err: fmt.Errorf("short read of block %d: got %d bytes, expected %d", nBlock, n, chunk),
			}
		}
		copy(out[nBlock*blockSize:], block[:chunk])
		remaining -= chunk

		if chunk > 0 {
			s.p.reportProgress(newProgress(PhaseReading, nBlock+1, total, byteCount-remaining, start))
		}
	}

	return out, nil
}

func newProgress(phase string, block, total, bytes int, start time.Time) Progress {
	pct := 100.0
	if total > 0 {
		pct = float64(block) / float64(total) * 100
	}
	return Progress{
		Phase:       phase,
		Block:       block,
		TotalBlocks: total,
		Percentage:  pct,
		Bytes:       bytes,
		ElapsedTime: time.Since(start),
	}
}

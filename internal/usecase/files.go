package usecase

import (
	"context"
	"devctl/internal/domain"
	"devctl/internal/protocol"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// sendChunked transmits payload with the chunked protocol. A protocol failure is
// answered with failReply; a network failure ends the session.
func sendChunked(sess *domain.Session, payload []byte, failReply string) (bool, error) {
	err := sess.Stream.SendChunked(payload)
	if err == nil {
		return true, nil
	}
	if protocol.IsProtocolError(err) {
		sess.Log.Warn("Chunked send aborted", "err", err)
		return true, sess.Reply(failReply)
	}
	return false, err
}

func (d *Device) list(_ context.Context, sess *domain.Session, _ string) (bool, error) {
	files, err := d.Files.ListFiles()
	if err != nil {
		return true, sess.Reply(fmt.Sprintf("read error: %v", err))
	}

	var b strings.Builder
	b.WriteString("files:\n")
	for _, f := range files {
		if f.IsDir {
			fmt.Fprintf(&b, "%s - [dir]\n", f.Name)
			continue
		}
		fmt.Fprintf(&b, "%s - %d bytes\n", f.Name, f.Size)
	}
	sess.Log.Debug("Listed files", "count", len(files))
	return true, sess.Reply(b.String())
}

func (d *Device) cat(_ context.Context, sess *domain.Session, arg string) (bool, error) {
	name := strings.TrimSpace(arg)
	data, err := d.Files.ReadFile(name)
	if err != nil {
		return true, sess.Reply(fmt.Sprintf("read error: %v", err))
	}
	return sendChunked(sess, data, "file send failed")
}

func (d *Device) write(_ context.Context, sess *domain.Session, arg string) (bool, error) {
	arg = strings.TrimLeftFunc(arg, unicode.IsSpace)
	i := strings.IndexFunc(arg, unicode.IsSpace)
	if i < 0 {
		return true, sess.Reply("usage: write <name> <content>")
	}
	name, content := arg[:i], strings.TrimLeftFunc(arg[i:], unicode.IsSpace)
	if content == "" {
		return true, sess.Reply("usage: write <name> <content>")
	}

	if err := d.Files.WriteFile(name, []byte(content)); err != nil {
		return true, sess.Reply(fmt.Sprintf("write error: %v", err))
	}
	sess.Log.Info("File saved", "name", name, "size", len(content))
	return true, sess.Reply(fmt.Sprintf("file %s saved", name))
}

func (d *Device) del(_ context.Context, sess *domain.Session, arg string) (bool, error) {
	name := strings.TrimSpace(arg)
	if err := d.Files.DeleteFile(name); err != nil {
		return true, sess.Reply(fmt.Sprintf("delete error: %v", err))
	}
	sess.Log.Info("File deleted", "name", name)
	return true, sess.Reply(fmt.Sprintf("file %s deleted", name))
}

func (d *Device) resume(_ context.Context, sess *domain.Session, arg string) (bool, error) {
	name := strings.TrimSpace(arg)
	state, ok := d.Transfers.Get()
	if !ok || state.Filename != name {
		return true, sess.Reply("NOTFOUND")
	}
	return true, sess.Reply(fmt.Sprintf("FOUND:%d:%d", state.Position, state.TotalSize))
}

func (d *Device) get(_ context.Context, sess *domain.Session, arg string) (bool, error) {
	name := strings.TrimSpace(arg)
	info, err := d.Files.GetFileInfo(name)
	if err != nil || info.IsDir {
		return true, sess.Reply("file not found")
	}
	data, err := d.Files.ReadFile(name)
	if err != nil {
		sess.Log.Warn("Failed to read file for download", "name", name, "err", err)
		return true, sess.Reply("download failed")
	}

	cont, err := sendChunked(sess, data, "download failed")
	if err != nil || !cont {
		return cont, err
	}
	sess.Log.Info("File downloaded", "name", name, "size", len(data))
	return true, sess.Reply(protocol.CompleteToken)
}

// resumableTransfer returns the recorded transfer an upload of name continues. A
// record whose partial file is gone or shorter than the recorded position is
// discarded, and the upload starts over.
func (d *Device) resumableTransfer(sess *domain.Session, name string) *domain.TransferState {
	state, ok := d.Transfers.Get()
	if !ok || state.Filename != name {
		return nil
	}
	info, err := d.Files.GetFileInfo(name)
	if err == nil && !info.IsDir && info.Size >= state.Position {
		return state
	}

	sess.Log.Warn("Discarding stale transfer state", "name", name, "position", state.Position)
	if err := d.Transfers.Delete(); err != nil {
		sess.Log.Warn("Failed to delete transfer state", "err", err)
	}
	return nil
}

func (d *Device) upload(_ context.Context, sess *domain.Session, arg string) (bool, error) {
	name := strings.TrimSpace(arg)
	if _, err := d.Files.GetFileInfo(name); errors.Is(err, domain.ErrInvalidFileName) {
		return true, sess.Reply("upload failed")
	}

	var pos int64
	reply := "READY"
	if state := d.resumableTransfer(sess, name); state != nil {
		pos = state.Position
		reply = fmt.Sprintf("RESUME:%d:%d", state.Position, state.TotalSize)
	}
	if err := sess.Reply(reply); err != nil {
		return false, err
	}

	frame, err := sess.Stream.Recv(protocol.FrameBufferSize)
	if err != nil {
		return false, err
	}
	total, err := protocol.ParseLength(frame)
	if err != nil || total < pos {
		sess.Log.Warn("Upload rejected", "name", name, "length", string(frame), "position", pos)
		return true, sess.Reply("upload failed")
	}

	w, err := d.Files.OpenUpload(name, pos)
	if err != nil {
		sess.Log.Warn("Failed to open upload target", "name", name, "err", err)
		return true, sess.Reply("upload failed")
	}
	defer w.Close()

	d.saveTransfer(sess, domain.TransferState{Filename: name, Position: pos, TotalSize: total})
	if err := sess.Stream.SendAck(); err != nil {
		return false, err
	}

	sess.Log.Info("Receiving file", "name", name, "from", pos, "total", total)
	received, err := sess.Stream.ReceiveChunks(w, pos, total, func(received int64) {
		d.saveTransfer(sess, domain.TransferState{Filename: name, Position: received, TotalSize: total})
	})
	if err != nil {
		if protocol.IsProtocolError(err) {
			sess.Log.Warn("Upload aborted", "name", name, "received", received, "err", err)
			return true, sess.Reply("upload failed")
		}
		sess.Log.Warn("Upload interrupted", "name", name, "received", received, "err", err)
		return false, err
	}
	if err := w.Close(); err != nil {
		sess.Log.Warn("Failed to finish upload", "name", name, "err", err)
		return true, sess.Reply("upload failed")
	}

	if err := d.Transfers.Delete(); err != nil {
		sess.Log.Warn("Failed to delete transfer state", "err", err)
	}
	sess.Log.Info("File uploaded", "name", name, "size", received)
	return true, sess.Reply(fmt.Sprintf("file %s uploaded, %d bytes", name, received))
}

// saveTransfer persists upload progress. A failed save only costs resumability.
func (d *Device) saveTransfer(sess *domain.Session, state domain.TransferState) {
	if err := d.Transfers.Save(state); err != nil {
		sess.Log.Warn("Failed to save transfer state", "err", err)
	}
}

package dashboard

const dashboardHTML = `<!DOCTYPE html>
<html lang="it">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>NewsHound Monitor</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: 'Inter', -apple-system, system-ui, sans-serif; background: #0f172a; color: #e2e8f0; min-height: 100vh; }
        .header { background: linear-gradient(135deg, #1e293b, #334155); padding: 1.5rem 2rem; border-bottom: 1px solid #475569; display: flex; justify-content: space-between; align-items: center; }
        .header h1 { font-size: 1.5rem; color: #38bdf8; }
        .summary { font-size: 0.875rem; color: #94a3b8; }
        table { width: calc(100% - 4rem); margin: 2rem; border-collapse: collapse; background: #1e293b; border-radius: 12px; overflow: hidden; }
        th, td { padding: 0.75rem 1rem; text-align: left; border-bottom: 1px solid #334155; font-size: 0.875rem; }
        th { font-size: 0.75rem; text-transform: uppercase; letter-spacing: 0.05em; color: #94a3b8; }
        .pill { padding: 0.2rem 0.6rem; border-radius: 9999px; font-weight: 600; font-size: 0.75rem; }
        .pill.running { background: #166534; color: #4ade80; }
        .pill.stopped { background: #991b1b; color: #fca5a5; }
        .error { color: #f87171; max-width: 28rem; overflow: hidden; text-overflow: ellipsis; white-space: nowrap; }
        button { background: #334155; color: #e2e8f0; border: 1px solid #475569; border-radius: 6px; padding: 0.3rem 0.8rem; cursor: pointer; }
        button:hover { border-color: #38bdf8; }
        .footer { text-align: center; padding: 1rem; color: #475569; font-size: 0.75rem; }
    </style>
</head>
<body>
    <div class="header">
        <h1>NewsHound</h1>
        <span class="summary" id="summary">loading...</span>
    </div>
    <table>
        <thead>
            <tr><th>Source</th><th>Kind</th><th>State</th><th>Seen</th><th>Interval</th><th>Last check</th><th>Last error</th><th></th></tr>
        </thead>
        <tbody id="monitors"></tbody>
    </table>
    <div class="footer">NewsHound {{VERSION}} &middot; refreshes every 5s</div>
    <script>
        function esc(s) {
            return String(s).replace(/[&<>"']/g, c => ({'&':'&amp;','<':'&lt;','>':'&gt;','"':'&quot;',"'":'&#39;'}[c]));
        }
        function fmtInterval(ns) {
            const s = Math.round(ns / 1e9);
            return s >= 60 ? Math.round(s / 60) + 'm' : s + 's';
        }
        function fmtTime(t) {
            if (!t || t.startsWith('0001')) return '-';
            return new Date(t).toLocaleString('it-IT');
        }
        async function act(name, action) {
            const res = await fetch('/api/monitors/' + encodeURIComponent(name) + '/' + action, {method: 'POST'});
            if (!res.ok) {
                const body = await res.json().catch(() => ({}));
                alert(name + ': ' + (body.error || res.status));
            }
            refresh();
        }
        async function refresh() {
            try {
                const res = await fetch('/api/status');
                const data = await res.json();
                document.getElementById('summary').textContent = data.running + ' / ' + data.total + ' running';
                document.getElementById('monitors').innerHTML = (data.monitors || []).map(m => {
                    const state = m.running ? 'running' : 'stopped';
                    const action = m.running ? 'stop' : 'start';
                    return '<tr>' +
                        '<td>' + esc(m.name) + '</td>' +
                        '<td>' + esc(m.kind) + '</td>' +
                        '<td><span class="pill ' + state + '">' + state + '</span></td>' +
                        '<td>' + m.seen + '</td>' +
                        '<td>' + fmtInterval(m.interval) + '</td>' +
                        '<td>' + fmtTime(m.last_check) + '</td>' +
                        '<td class="error" title="' + esc(m.last_error || '') + '">' + esc(m.last_error || '') + '</td>' +
                        '<td><button data-name="' + esc(m.name) + '" data-action="' + action + '">' + action + '</button></td>' +
                        '</tr>';
                }).join('');
            } catch (e) {
                document.getElementById('summary').textContent = 'API unreachable';
            }
        }
        document.getElementById('monitors').addEventListener('click', e => {
            const b = e.target.closest('button');
            if (b) act(b.dataset.name, b.dataset.action);
        });
        refresh();
        setInterval(refresh, 5000);
    </script>
</body>
</html>`
